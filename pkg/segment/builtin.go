package segment

import (
	"github.com/japaniel/langparser/pkg/dictionary"
	"github.com/japaniel/langparser/pkg/script"
)

// Builtin returns a registry backed by the embedded seed dictionaries.
func Builtin() (*Registry, error) {
	segs := []Segmenter{Korean{}}
	for _, v := range []script.Variant{script.Mandarin, script.Cantonese} {
		dict, readings, err := dictionary.Builtin(string(v))
		if err != nil {
			return nil, err
		}
		c, err := NewChinese(v, dict, readings, DefaultMemoSize)
		if err != nil {
			return nil, err
		}
		segs = append(segs, c)
	}
	return NewRegistry(segs...), nil
}
