package segment

import "github.com/japaniel/langparser/pkg/script"

// Korean treats every Hangul run as one indivisible word.
type Korean struct{}

func (Korean) Variant() script.Variant       { return script.Korean }
func (Korean) Classifier() script.Classifier { return script.IsHangul }

func (Korean) Segment(chunk string) []string {
	if chunk == "" {
		return nil
	}
	return []string{chunk}
}

// Pronounce always reports false; Korean has no per-character reading table.
func (Korean) Pronounce(string) (string, bool) { return "", false }
