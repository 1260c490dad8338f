package segment

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/japaniel/langparser/pkg/dictionary"
	"github.com/japaniel/langparser/pkg/script"
)

// DefaultMemoSize bounds the number of memoized chunk segmentations.
const DefaultMemoSize = 4096

// Chinese segments Han runs by greedy longest-prefix dictionary matching.
type Chinese struct {
	variant  script.Variant
	dict     *dictionary.Dictionary
	readings dictionary.ReadingTable
	memo     *lru.Cache[string, []string]
}

// NewChinese builds a segmenter for a Chinese variant. memoSize <= 0 disables memoization.
func NewChinese(v script.Variant, dict *dictionary.Dictionary, readings dictionary.ReadingTable, memoSize int) (*Chinese, error) {
	if v != script.Mandarin && v != script.Cantonese {
		return nil, fmt.Errorf("%w: %q is not a Chinese variant", script.ErrUnsupportedVariant, string(v))
	}
	c := &Chinese{variant: v, dict: dict, readings: readings}
	if memoSize > 0 {
		memo, err := lru.New[string, []string](memoSize)
		if err != nil {
			return nil, fmt.Errorf("create segmentation memo: %w", err)
		}
		c.memo = memo
	}
	return c, nil
}

func (c *Chinese) Variant() script.Variant       { return c.variant }
func (c *Chinese) Classifier() script.Classifier { return script.IsHan }

// Segment memoizes MaxMatch per chunk; repeated headings and navigation text
// on a page are segmented once.
func (c *Chinese) Segment(chunk string) []string {
	if c.memo != nil {
		if words, ok := c.memo.Get(chunk); ok {
			return append([]string(nil), words...)
		}
	}
	words := MaxMatch(chunk, c.dict)
	mustCover(chunk, words)
	if c.memo != nil {
		c.memo.Add(chunk, append([]string(nil), words...))
	}
	return words
}

func (c *Chinese) Pronounce(word string) (string, bool) {
	return c.readings.Pronounce(word), true
}

// MaxMatch splits text left to right, at each position taking the longest
// prefix found in dict and falling back to a single character. Every
// character lands in exactly one word. No backtracking is attempted.
func MaxMatch(text string, dict *dictionary.Dictionary) []string {
	runes := []rune(text)
	var words []string
	for i := 0; i < len(runes); {
		n := 1
		for l := min(dict.MaxLength(), len(runes)-i); l >= 1; l-- {
			if dict.Contains(string(runes[i : i+l])) {
				n = l
				break
			}
		}
		words = append(words, string(runes[i:i+n]))
		i += n
	}
	return words
}
