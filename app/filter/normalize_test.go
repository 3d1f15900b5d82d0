package filter

import "testing"

func TestNormalizeName(t *testing.T) {
	cases := []struct {
		input    string
		expected string
	}{
		{"  Falafel King  ", "falafel king"},
		{"מִסְעָדָה", "מסעדה"},
		{"ג׳חנון בר", "ג'חנון בר"},
		{"Café!! (Tel-Aviv)", "cafe telaviv"},
		{"שניצל   פלוס", "שניצל פלוס"},
		{"", ""},
		{"!!!", ""},
	}

	for _, c := range cases {
		got := NormalizeName(c.input)
		if got != c.expected {
			t.Errorf("NormalizeName(%q): expected %q, got %q", c.input, c.expected, got)
		}
	}
}

func TestStripArticle(t *testing.T) {
	cases := []struct {
		input    string
		expected string
	}{
		{"המקום", "מקום"},
		{"הם", "הם"}, // too short to lose the article
		{"מקום", "מקום"},
		{"falafel", "falafel"},
	}

	for _, c := range cases {
		got := StripArticle(c.input)
		if got != c.expected {
			t.Errorf("StripArticle(%q): expected %q, got %q", c.input, c.expected, got)
		}
	}
}
