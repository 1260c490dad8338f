// Package knowledge is the token knowledgebase: per-variant familiarity,
// notes and derived pronunciation for every word a reader has seen.
package knowledge

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/japaniel/langparser/pkg/script"
)

const (
	// MinFamiliarity marks an unknown word.
	MinFamiliarity = 0
	// MaxFamiliarity marks a mastered word.
	MaxFamiliarity = 4
	levels         = MaxFamiliarity + 1
)

var (
	// ErrMalformedSnapshot is returned by Import when the snapshot lacks the
	// top-level {tokens, userStats} shape. The previous state is retained.
	ErrMalformedSnapshot = errors.New("malformed knowledgebase snapshot")
	// ErrMalformedTokenState is returned by Write when a state is invalid.
	// The previously stored state is retained.
	ErrMalformedTokenState = errors.New("malformed token state")
)

// TokenState is the learning state of one word. Pronunciation is empty for
// Korean and set for Chinese variants.
type TokenState struct {
	Familiarity   int `validate:"gte=0,lte=4"`
	Notes         string
	Pronunciation string
}

// NextFamiliarity cycles 0→1→2→3→4→0.
func NextFamiliarity(f int) int {
	return (f + 1) % levels
}

var validate = validator.New()

func validateState(v script.Variant, s TokenState) error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedTokenState, err)
	}
	switch readingKey(v) {
	case "":
		if s.Pronunciation != "" {
			return fmt.Errorf("%w: %s carries no pronunciation", ErrMalformedTokenState, v)
		}
	default:
		if s.Pronunciation == "" {
			return fmt.Errorf("%w: %s requires a pronunciation", ErrMalformedTokenState, v)
		}
	}
	return nil
}

// readingKey is the snapshot field holding a variant's pronunciation.
func readingKey(v script.Variant) string {
	switch v {
	case script.Mandarin:
		return "py"
	case script.Cantonese:
		return "jy"
	default:
		return ""
	}
}

// Histogram counts tokens per familiarity level.
type Histogram [levels]int

// MarshalJSON renders {"0": n, ..., "4": n}.
func (h Histogram) MarshalJSON() ([]byte, error) {
	m := make(map[string]int, levels)
	for i, n := range h {
		m[strconv.Itoa(i)] = n
	}
	return json.Marshal(m)
}

// Total is the number of counted tokens.
func (h Histogram) Total() int {
	total := 0
	for _, n := range h {
		total += n
	}
	return total
}

// Stats holds two independent histograms: every known token of a variant,
// and only the distinct tokens currently visible in a rendered scope.
type Stats struct {
	Full Histogram `json:"full"`
	Page Histogram `json:"page"`
}
