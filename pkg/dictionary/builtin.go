package dictionary

import (
	"bytes"
	"embed"
	"fmt"
	"sync"
)

//go:embed data/*.txt data/*.tsv
var seedData embed.FS

type seed struct {
	once     sync.Once
	dict     *Dictionary
	readings ReadingTable
	err      error
}

var seeds = map[string]*seed{
	"zh_CN": {},
	"zh_HK": {},
}

// Builtin returns the embedded seed dictionary and reading table for a
// Chinese variant key ("zh_CN" or "zh_HK"). The data is parsed once.
func Builtin(variant string) (*Dictionary, ReadingTable, error) {
	s, ok := seeds[variant]
	if !ok {
		return nil, nil, fmt.Errorf("no builtin dictionary for %q", variant)
	}
	s.once.Do(func() {
		words, err := seedData.ReadFile("data/" + variant + ".words.txt")
		if err != nil {
			s.err = err
			return
		}
		readings, err := seedData.ReadFile("data/" + variant + ".readings.tsv")
		if err != nil {
			s.err = err
			return
		}
		if s.dict, s.err = LoadWordList(bytes.NewReader(words)); s.err != nil {
			return
		}
		s.readings, s.err = LoadReadings(bytes.NewReader(readings))
	})
	return s.dict, s.readings, s.err
}
