package tagging

import "strings"

// Relevance tag scores.
//
//	0: no keywords found
//	1: only generic terms, fewer than three
//	2: generic plus specialised/abbreviation, or only specialised
//	3: only abbreviations
//	4: only generic terms, three or more
const (
	ScoreNone            = 0
	ScoreGenericFew      = 1
	ScoreMixed           = 2
	ScoreAbbreviation    = 3
	ScoreGenericStrong   = 4
	genericStrongMinimum = 3
)

// Result is one scored text.
type Result struct {
	Score   int
	Matched []string
}

// Tagged reports whether any keyword matched.
func (r Result) Tagged() bool {
	return r.Score > ScoreNone
}

// Score evaluates text against the keyword set. Generic and specialised
// terms match as case-insensitive substrings; abbreviations match
// case-sensitively on word boundaries. Matched keywords from every category
// are returned in category order.
func (k *KeywordSet) Score(text string) Result {
	lower := strings.ToLower(text)

	var matched []string
	matchedGeneric := 0
	for _, term := range k.Generic {
		if term != "" && strings.Contains(lower, term) {
			matched = append(matched, term)
			matchedGeneric++
		}
	}
	foundGeneric := matchedGeneric > 0

	foundSpecialised := false
	for _, term := range k.Specialised {
		if term != "" && strings.Contains(lower, term) {
			matched = append(matched, term)
			foundSpecialised = true
		}
	}

	foundAbbreviation := false
	for i, re := range k.abbrPatterns {
		if re.MatchString(text) {
			matched = append(matched, k.Abbreviation[i])
			foundAbbreviation = true
		}
	}

	score := ScoreNone
	switch {
	case foundGeneric && !foundSpecialised && !foundAbbreviation:
		if matchedGeneric >= genericStrongMinimum {
			score = ScoreGenericStrong
		} else {
			score = ScoreGenericFew
		}
	case (foundGeneric && (foundSpecialised || foundAbbreviation)) ||
		(foundSpecialised && !foundGeneric && !foundAbbreviation):
		score = ScoreMixed
	case foundAbbreviation && !foundGeneric && !foundSpecialised:
		score = ScoreAbbreviation
	}

	return Result{Score: score, Matched: matched}
}

// CombineText joins the scorable fields of a row the way the scoring
// pipeline expects: title, description and tags separated by spaces.
func CombineText(title, description, tags string) string {
	return strings.TrimSpace(title + " " + description + " " + tags)
}
