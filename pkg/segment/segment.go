// Package segment splits target-script runs into dictionary words.
package segment

import (
	"fmt"
	"strings"

	"github.com/japaniel/langparser/pkg/script"
)

// Token is one unit of segmented text. Target tokens carry the variant they
// were segmented for; inert text carries script.None.
type Token struct {
	Text    string
	Variant script.Variant
	Target  bool
}

// Segmenter is the per-variant segmentation capability.
type Segmenter interface {
	Variant() script.Variant
	Classifier() script.Classifier
	// Segment splits a target-script chunk into words whose concatenation is the chunk.
	Segment(chunk string) []string
	// Pronounce derives a reading for word. ok is false when the variant has no reading table.
	Pronounce(word string) (reading string, ok bool)
}

// Tokenize chunks text by the segmenter's script and segments every target chunk.
func Tokenize(s Segmenter, text string) []Token {
	chunks := script.ChunkText(text, s.Classifier())
	tokens := make([]Token, 0, len(chunks))
	for _, c := range chunks {
		if !c.Match {
			tokens = append(tokens, Token{Text: c.Text, Variant: script.None})
			continue
		}
		for _, w := range s.Segment(c.Text) {
			tokens = append(tokens, Token{Text: w, Variant: s.Variant(), Target: true})
		}
	}
	return tokens
}

// mustCover panics when words do not partition chunk exactly.
func mustCover(chunk string, words []string) {
	if strings.Join(words, "") != chunk {
		panic(fmt.Sprintf("segment: words %q do not reconstruct %q", words, chunk))
	}
	for _, w := range words {
		if w == "" {
			panic(fmt.Sprintf("segment: empty word while segmenting %q", chunk))
		}
	}
}

// Registry resolves a variant to its Segmenter.
type Registry struct {
	segmenters map[script.Variant]Segmenter
}

// NewRegistry indexes segmenters by their variant; later entries win.
func NewRegistry(segmenters ...Segmenter) *Registry {
	r := &Registry{segmenters: make(map[script.Variant]Segmenter, len(segmenters))}
	for _, s := range segmenters {
		r.segmenters[s.Variant()] = s
	}
	return r
}

// For returns the segmenter of v or script.ErrUnsupportedVariant.
func (r *Registry) For(v script.Variant) (Segmenter, error) {
	if r != nil {
		if s, ok := r.segmenters[v]; ok {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: no segmenter for %q", script.ErrUnsupportedVariant, string(v))
}

// Variants lists the registered variants in script.Variants order.
func (r *Registry) Variants() []script.Variant {
	var out []script.Variant
	for _, v := range script.Variants() {
		if _, ok := r.segmenters[v]; ok {
			out = append(out, v)
		}
	}
	return out
}
