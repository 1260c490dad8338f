package langparser

import (
	"context"
	"fmt"
	"os"

	"github.com/japaniel/langparser/pkg/dictionary"
	"github.com/japaniel/langparser/pkg/logger"
	"github.com/japaniel/langparser/pkg/script"
	"github.com/japaniel/langparser/pkg/segment"
)

// DictionaryFiles locates the dictionary of one Chinese variant. CEDICT
// takes precedence over Words and Readings; with none set the embedded
// seed data is used. A missing CEDICT file is downloaded from URL.
type DictionaryFiles struct {
	Words    string
	Readings string
	CEDICT   string
	URL      string
}

// LoadSegmenters builds the segmenters for every variant, reading Chinese
// dictionaries from files where configured.
func LoadSegmenters(ctx context.Context, files map[script.Variant]DictionaryFiles, log logger.Logger) (*segment.Registry, error) {
	log = logger.OrDiscard(log)
	segs := []segment.Segmenter{segment.Korean{}}
	for _, v := range []script.Variant{script.Mandarin, script.Cantonese} {
		dict, readings, err := loadDictionary(ctx, v, files[v])
		if err != nil {
			return nil, fmt.Errorf("%s dictionary: %w", v, err)
		}
		log.Debug("loaded dictionary", "variant", v, "words", dict.Len(), "readings", len(readings))
		c, err := segment.NewChinese(v, dict, readings, segment.DefaultMemoSize)
		if err != nil {
			return nil, err
		}
		segs = append(segs, c)
	}
	return segment.NewRegistry(segs...), nil
}

func loadDictionary(ctx context.Context, v script.Variant, f DictionaryFiles) (*dictionary.Dictionary, dictionary.ReadingTable, error) {
	switch {
	case f.CEDICT != "":
		if err := dictionary.EnsureDictionary(ctx, f.CEDICT, f.URL); err != nil {
			return nil, nil, err
		}
		r, err := os.Open(f.CEDICT)
		if err != nil {
			return nil, nil, err
		}
		defer r.Close()
		im := dictionary.Importer{Form: dictionary.Simplified, Reading: dictionary.PinyinField}
		if v == script.Cantonese {
			im = dictionary.Importer{Form: dictionary.Traditional, Reading: dictionary.JyutpingField}
		}
		return im.Import(r)

	case f.Words != "":
		wr, err := os.Open(f.Words)
		if err != nil {
			return nil, nil, err
		}
		defer wr.Close()
		dict, err := dictionary.LoadWordList(wr)
		if err != nil {
			return nil, nil, err
		}
		if f.Readings == "" {
			_, readings, err := dictionary.Builtin(string(v))
			return dict, readings, err
		}
		rr, err := os.Open(f.Readings)
		if err != nil {
			return nil, nil, err
		}
		defer rr.Close()
		readings, err := dictionary.LoadReadings(rr)
		return dict, readings, err

	default:
		return dictionary.Builtin(string(v))
	}
}
