package filter

import "regexp"

// commonWords are transcript filler words the extractor regularly mistakes
// for restaurant names. Hebrew entries are stored without the definite
// article; lookups strip it before matching.
var commonWords = map[string]struct{}{
	// Hebrew function and filler words
	"של":    {},
	"זה":    {},
	"זאת":   {},
	"כן":    {},
	"לא":    {},
	"מה":    {},
	"מי":    {},
	"איפה":  {},
	"שם":    {},
	"פה":    {},
	"כאן":   {},
	"יש":    {},
	"אין":   {},
	"גם":    {},
	"רק":    {},
	"עוד":   {},
	"כל":    {},
	"או":    {},
	"אם":    {},
	"אז":    {},
	"אבל":   {},
	"על":    {},
	"עם":    {},
	"את":    {},
	"אני":   {},
	"הוא":   {},
	"היא":   {},
	"אנחנו": {},
	"הם":    {},
	"משהו":  {},
	"דבר":   {},
	"פעם":   {},
	"היום":  {},
	"עכשיו": {},
	"ממש":   {},
	"בסדר":  {},
	"נחמד":  {},
	"מאוד":  {},
	"הכי":   {},
	"טוב":   {},
	"טעים":  {},
	// Food-domain words that are not names by themselves
	"מקום":  {},
	"אוכל":  {},
	"מסעדה": {},
	"מנה":   {},
	"תפריט": {},
	// English fillers seen in mixed-language transcripts
	"the":        {},
	"place":      {},
	"food":       {},
	"restaurant": {},
	"good":       {},
	"very":       {},
	"here":       {},
	"there":      {},
}

// isCommonWord checks a normalized token, with and without a leading
// definite article.
func isCommonWord(word string) bool {
	if _, ok := commonWords[word]; ok {
		return true
	}
	_, ok := commonWords[StripArticle(word)]
	return ok
}

// fragmentPatterns recognize names that are transcript fragments rather
// than names: clauses cut at a conjunction, names ending in a dangling
// preposition, and truncation artifacts the ASR pipeline produces.
var fragmentPatterns = []struct {
	re     *regexp.Regexp
	reason string
}{
	{regexp.MustCompile(`^(ואז|וגם|ואם|אבל|כאילו|בעצם|אוקיי|אז|כי)\s`), "starts with a conjunction"},
	{regexp.MustCompile(`\s(של|את|עם|על|אל|כמו|ליד|בלי|לפני|אחרי|בתוך)$`), "ends with a dangling preposition"},
	{regexp.MustCompile(`^(רים|ים|ות|נים|צים|יות)$`), "truncated word fragment"},
	{regexp.MustCompile(`(\.\.\.|…)$`), "truncated text"},
}
