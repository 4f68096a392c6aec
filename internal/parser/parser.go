// Package parser decodes structured results out of raw backend replies.
//
// Replies are often wrapped in prose or markdown fences, so decoding runs an
// ordered chain of extraction strategies (direct, fenced block, outermost
// bracket scan). The first payload that strictly decodes wins. Decoded values
// are then checked for required fields.
package parser

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-spout/internal/domain"
)

// Targets name the response shapes in errors and logs.
const (
	TargetGeneratedItems = "generated_items"
	TargetVariants       = "variants"
	TargetRankings       = "rankings"
)

var validate = validator.New()

// GeneratedItems is the generation backend's reply.
type GeneratedItems struct {
	Items []string `json:"generated_items" validate:"required"`
}

// Variants is the mutation backend's reply.
type Variants struct {
	Variants []string `json:"variants" validate:"required"`
}

// Rankings is the judging backend's reply.
type Rankings struct {
	Rankings []RankingEntry `json:"Rankings" validate:"required"`
}

// RankingEntry is one judged entry. Name is either "Input N" or a literal
// fragment of the candidate text.
type RankingEntry struct {
	Name        string `json:"Name"`
	Rank        Number `json:"Rank"`
	Score       Number `json:"Score"`
	Explanation string `json:"Explanation"`
}

// Number accepts a JSON number or a numeric string. Anything else decodes
// to zero.
type Number float64

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*n = 0
		return nil
	}
	if unq, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unq)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*n = 0
		return nil
	}
	*n = Number(f)
	return nil
}

// Int returns n truncated to an int.
func (n Number) Int() int { return int(n) }

// ParseGeneratedItems decodes a generation reply.
func ParseGeneratedItems(text string) (GeneratedItems, error) {
	return Parse[GeneratedItems](text, TargetGeneratedItems)
}

// ParseVariants decodes a mutation reply.
func ParseVariants(text string) (Variants, error) {
	return Parse[Variants](text, TargetVariants)
}

// ParseRankings decodes a judging reply.
func ParseRankings(text string) (Rankings, error) {
	return Parse[Rankings](text, TargetRankings)
}

// Parse runs DefaultStrategies against text and decodes the first payload
// that is valid JSON for T. It returns a *domain.ParseError when no strategy
// yields a decodable payload and a *domain.StructuralError when the decoded
// value fails its validate tags.
func Parse[T any](text, target string) (T, error) {
	return ParseWith[T](text, target, DefaultStrategies)
}

// ParseWith is Parse with an explicit strategy chain.
func ParseWith[T any](text, target string, strategies []Strategy) (T, error) {
	var zero T
	attempts := make([]string, 0, len(strategies))
	var lastErr error

	for _, s := range strategies {
		payloads := s.Extract(text)
		if len(payloads) == 0 {
			continue
		}
		attempts = append(attempts, s.Name)

		// A payload that decodes but fails validation only wins if no later
		// payload from the same strategy passes.
		var structErr error
		for _, payload := range payloads {
			var v T
			if err := json.Unmarshal([]byte(payload), &v); err != nil {
				lastErr = err
				continue
			}
			if err := checkStructure(v, target); err != nil {
				if structErr == nil {
					structErr = err
				}
				continue
			}
			return v, nil
		}
		if structErr != nil {
			return zero, structErr
		}
	}

	if lastErr == nil {
		lastErr = domain.ErrNoPayload
	}
	return zero, domain.NewParseError(target, attempts, len(text), lastErr)
}

func checkStructure(v any, target string) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	field := ""
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		field = verrs[0].Field()
	}
	return domain.NewStructuralError(target, field, err)
}
