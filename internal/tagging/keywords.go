// Package tagging scores ingested video text against therapy-area keyword
// lists. Scoring is a pure function over three keyword categories: generic
// terms, specialised terms, and abbreviations (matched case-sensitively on
// word boundaries).
package tagging

import (
	"encoding/csv"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// KeywordSet holds the three keyword categories for one therapy area.
type KeywordSet struct {
	Generic      []string
	Specialised  []string
	Abbreviation []string

	abbrPatterns []*regexp.Regexp
}

// LoadKeywords reads a keyword CSV with Generic, Specialised and
// Abbreviations columns. Cell values may contain comma-separated lists.
// Generic and specialised terms are lowercased; abbreviations keep their
// case and match on word boundaries.
func LoadKeywords(path string) (*KeywordSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open keywords: %w", err)
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read keywords csv: %w", err)
	}
	if len(rows) < 1 {
		return nil, fmt.Errorf("keyword file %s is empty", path)
	}

	cols := map[string]int{}
	for i, name := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	genericCol, ok := cols["generic"]
	if !ok {
		return nil, fmt.Errorf("keyword file %s missing Generic column", path)
	}
	specialisedCol, ok := cols["specialised"]
	if !ok {
		return nil, fmt.Errorf("keyword file %s missing Specialised column", path)
	}
	abbrCol, ok := cols["abbreviations"]
	if !ok {
		return nil, fmt.Errorf("keyword file %s missing Abbreviations column", path)
	}

	ks := &KeywordSet{}
	for _, row := range rows[1:] {
		ks.Generic = append(ks.Generic, splitTerms(row, genericCol, true)...)
		ks.Specialised = append(ks.Specialised, splitTerms(row, specialisedCol, true)...)
		ks.Abbreviation = append(ks.Abbreviation, splitTerms(row, abbrCol, false)...)
	}
	return ks, ks.compile()
}

// NewKeywordSet builds a set directly from term slices (used in tests and by
// callers with non-CSV sources).
func NewKeywordSet(generic, specialised, abbreviations []string) (*KeywordSet, error) {
	ks := &KeywordSet{
		Generic:      lowerAll(generic),
		Specialised:  lowerAll(specialised),
		Abbreviation: trimAll(abbreviations),
	}
	return ks, ks.compile()
}

func (k *KeywordSet) compile() error {
	k.abbrPatterns = k.abbrPatterns[:0]
	for _, abbr := range k.Abbreviation {
		if abbr == "" {
			continue
		}
		re, err := regexp.Compile(`\b` + regexp.QuoteMeta(abbr) + `\b`)
		if err != nil {
			return fmt.Errorf("compile abbreviation %q: %w", abbr, err)
		}
		k.abbrPatterns = append(k.abbrPatterns, re)
	}
	return nil
}

func splitTerms(row []string, col int, lower bool) []string {
	if col >= len(row) {
		return nil
	}
	var out []string
	for _, part := range strings.Split(row[col], ",") {
		term := strings.TrimSpace(part)
		if term == "" {
			continue
		}
		if lower {
			term = strings.ToLower(term)
		}
		out = append(out, term)
	}
	return out
}

func trimAll(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		out = append(out, t)
	}
	return out
}

func lowerAll(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		out = append(out, strings.ToLower(t))
	}
	return out
}
