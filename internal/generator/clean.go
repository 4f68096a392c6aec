package generator

import (
	"regexp"
	"strings"

	"github.com/ahrav/go-spout/internal/domain"
)

var (
	reShellQuote        = regexp.MustCompile(`^\$'|'$`)
	reLeadingDollar     = regexp.MustCompile(`^\$`)
	reControl           = regexp.MustCompile(`[\x00-\x1F\x7F-\x9F]`)
	reTrailingJunk      = regexp.MustCompile(`['\\$]+$`)
	reTrailingBackslash = regexp.MustCompile(`\\+$`)
	reBackslashBeforeWS = regexp.MustCompile(`\\([,\s])`)
	reLeadingBackslash  = regexp.MustCompile(`^\\`)
	reEscapedChar       = regexp.MustCompile(`\\([^\\])`)
	reVariantQuote      = regexp.MustCompile(`^\$?'|'$`)
)

// CleanItem strips shell-quoting residue from one generated item: $'...'
// wrappers, a leading $, control characters, trailing quotes, backslashes
// and dollar signs, and stray escaping backslashes.
func CleanItem(s string) string {
	s = reShellQuote.ReplaceAllString(s, "")
	s = reLeadingDollar.ReplaceAllString(s, "")
	s = reControl.ReplaceAllString(s, "")
	s = reTrailingJunk.ReplaceAllString(s, "")
	s = reTrailingBackslash.ReplaceAllString(s, "")
	s = reBackslashBeforeWS.ReplaceAllString(s, "${1}")
	s = reLeadingBackslash.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, `\\`, `\`)
	s = reEscapedChar.ReplaceAllString(s, "${1}")
	return strings.TrimSpace(s)
}

// CleanItems cleans every item and drops the ones that end up inadmissible.
func CleanItems(items []string) []domain.Candidate {
	out := make([]domain.Candidate, 0, len(items))
	for _, it := range items {
		c := domain.Candidate(CleanItem(it))
		if c.Admissible() {
			out = append(out, c)
		}
	}
	return out
}

func cleanVariant(s string) string {
	return strings.TrimSpace(reVariantQuote.ReplaceAllString(s, ""))
}
