package filter

import (
	"fmt"
	"strings"

	"github.com/tastemap/tastemap/app/extraction"
)

// Verdict is the scoring outcome for a single extracted record. Confidence
// is the hallucination confidence in [0, 1]: higher means more likely
// spurious.
type Verdict struct {
	IsHallucination bool
	Confidence      float64
	Recommendation  string
	Reasons         []string
}

const (
	RecommendationAccept = "accept"
	RecommendationReview = "review"
	RecommendationReject = "reject"

	hallucinationThreshold = 0.5
	rejectThreshold        = 0.7
	reviewThreshold        = 0.4
)

// placeholderValues are strings the extraction worker emits instead of
// leaving a field empty.
var placeholderValues = map[string]struct{}{
	"-":       {},
	"n/a":     {},
	"na":      {},
	"none":    {},
	"null":    {},
	"unknown": {},
	"לא ידוע": {},
	"לא צוין": {},
	"אין":     {},
}

func isEmptyField(value string) bool {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return true
	}
	_, ok := placeholderValues[value]
	return ok
}

// Score evaluates one extracted record. It is deterministic, does not
// mutate the record and never fails: a fully empty record yields a valid
// reject verdict.
func Score(record extraction.Restaurant) Verdict {
	name := record.NameHe
	if strings.TrimSpace(name) == "" {
		name = record.NameEn
	}
	normalized := NormalizeName(name)

	var confidence float64
	var reasons []string

	if normalized == "" {
		return Verdict{
			IsHallucination: true,
			Confidence:      1.0,
			Recommendation:  RecommendationReject,
			Reasons:         []string{"empty name"},
		}
	}

	nameTokens := tokens(normalized)

	if isCommonWord(normalized) {
		confidence += 0.4
		reasons = append(reasons, fmt.Sprintf("common word: '%s'", normalized))
	} else if len(nameTokens) > 1 && allTokensCommon(nameTokens) {
		confidence += 0.3
		reasons = append(reasons, "every word is a common word")
	}

	// Fragment patterns run on the raw name: normalization strips the
	// punctuation some of them look for.
	raw := strings.TrimSpace(name)
	for _, pattern := range fragmentPatterns {
		if pattern.re.MatchString(raw) || pattern.re.MatchString(normalized) {
			confidence += 0.35
			reasons = append(reasons, "sentence fragment: "+pattern.reason)
			break
		}
	}

	compact := strings.ReplaceAll(normalized, " ", "")
	if len([]rune(compact)) <= 2 {
		confidence += 0.3
		reasons = append(reasons, "name too short")
	}

	if len(nameTokens) > 5 {
		confidence += 0.3
		reasons = append(reasons, "name too long to be a name")
	}

	// The cross-reference counts as matching if it agrees with either the
	// Hebrew or the English name.
	if google := NormalizeName(record.GoogleName); google != "" {
		altName := NormalizeName(record.NameEn)
		if !namesMatch(normalized, google) && (altName == "" || !namesMatch(altName, google)) {
			confidence += 0.25
			reasons = append(reasons, fmt.Sprintf("no match with Google Places name '%s'", record.GoogleName))
		}
	}

	if empty := countEmptyFields(record); empty >= 6 {
		confidence += 0.2
		reasons = append(reasons, fmt.Sprintf("%d of 8 detail fields empty", empty))
	}

	if confidence > 1.0 {
		confidence = 1.0
	}

	return Verdict{
		IsHallucination: confidence >= hallucinationThreshold,
		Confidence:      confidence,
		Recommendation:  recommendation(confidence),
		Reasons:         reasons,
	}
}

// Filter drops records scoring at or above the rejection threshold:
// 0.4 in strict mode, 0.7 otherwise. The returned verdicts are parallel
// to the input records.
func Filter(records []extraction.Restaurant, strict bool) ([]extraction.Restaurant, []Verdict) {
	kept := make([]extraction.Restaurant, 0, len(records))
	verdicts := make([]Verdict, 0, len(records))
	for _, record := range records {
		verdict := Score(record)
		verdicts = append(verdicts, verdict)
		if !Rejected(verdict, strict) {
			kept = append(kept, record)
		}
	}
	return kept, verdicts
}

// Rejected reports whether a verdict crosses the rejection threshold for
// the given mode.
func Rejected(verdict Verdict, strict bool) bool {
	threshold := rejectThreshold
	if strict {
		threshold = reviewThreshold
	}
	return verdict.Confidence >= threshold
}

func recommendation(confidence float64) string {
	switch {
	case confidence >= rejectThreshold:
		return RecommendationReject
	case confidence >= reviewThreshold:
		return RecommendationReview
	default:
		return RecommendationAccept
	}
}

func allTokensCommon(nameTokens []string) bool {
	for _, token := range nameTokens {
		if !isCommonWord(token) {
			return false
		}
	}
	return true
}

// namesMatch compares the extracted name against the cross-referenced one:
// exact, substring either way, or at least one shared token after article
// stripping.
func namesMatch(a, b string) bool {
	if a == b {
		return true
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}

	seen := map[string]struct{}{}
	for _, token := range tokens(a) {
		seen[StripArticle(token)] = struct{}{}
	}
	for _, token := range tokens(b) {
		if _, ok := seen[StripArticle(token)]; ok {
			return true
		}
	}
	return false
}

func countEmptyFields(record extraction.Restaurant) int {
	count := 0
	for _, value := range []string{
		record.Cuisine,
		record.City,
		record.Neighborhood,
		record.PriceRange,
		record.HostOpinion,
		record.HostComments,
	} {
		if isEmptyField(value) {
			count++
		}
	}
	if len(record.MenuItems) == 0 {
		count++
	}
	if len(record.SpecialFeatures) == 0 {
		count++
	}
	return count
}
