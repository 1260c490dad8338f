package dictionary

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// Entry is one parsed CC-CEDICT (or CC-Canto) line:
//
//	傳統 传统 [chuan2 tong3] {cyun4 tung2} /tradition/
type Entry struct {
	Traditional string
	Simplified  string
	Pinyin      string
	Jyutping    string
	Senses      []string
}

// Form selects which headword column becomes the dictionary word.
type Form int

const (
	Simplified Form = iota
	Traditional
)

// ReadingField selects which reading column feeds the reading table.
type ReadingField int

const (
	PinyinField ReadingField = iota
	JyutpingField
)

// ParseCEDICTLine parses a single line. Comment and blank lines return ok=false.
func ParseCEDICTLine(line string) (Entry, bool, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Entry{}, false, nil
	}
	fields := strings.SplitN(line, " ", 3)
	if len(fields) < 3 {
		return Entry{}, false, fmt.Errorf("malformed entry %q", line)
	}
	e := Entry{Traditional: fields[0], Simplified: fields[1]}
	rest := fields[2]

	if strings.HasPrefix(rest, "[") {
		end := strings.Index(rest, "]")
		if end < 0 {
			return Entry{}, false, fmt.Errorf("unterminated pinyin in %q", line)
		}
		e.Pinyin = strings.TrimSpace(rest[1:end])
		rest = strings.TrimSpace(rest[end+1:])
	}
	if strings.HasPrefix(rest, "{") {
		end := strings.Index(rest, "}")
		if end < 0 {
			return Entry{}, false, fmt.Errorf("unterminated jyutping in %q", line)
		}
		e.Jyutping = strings.TrimSpace(rest[1:end])
		rest = strings.TrimSpace(rest[end+1:])
	}
	for _, s := range strings.Split(strings.Trim(rest, "/"), "/") {
		if s = strings.TrimSpace(s); s != "" {
			e.Senses = append(e.Senses, s)
		}
	}
	return e, true, nil
}

// Importer builds a Dictionary and ReadingTable from CEDICT-formatted input.
type Importer struct {
	Form    Form
	Reading ReadingField
}

// Import reads every entry from r. Single-character entries provide the
// primary readings; syllables of longer words only fill characters that
// have no single-character entry.
func (im Importer) Import(r io.Reader) (*Dictionary, ReadingTable, error) {
	var words []string
	primary := make(ReadingTable)
	fallback := make(ReadingTable)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		e, ok, err := ParseCEDICTLine(sc.Text())
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if !ok {
			continue
		}
		word := e.Simplified
		if im.Form == Traditional {
			word = e.Traditional
		}
		words = append(words, word)

		reading := e.Pinyin
		if im.Reading == JyutpingField {
			reading = e.Jyutping
		}
		syllables := strings.Fields(strings.ToLower(reading))
		if len(syllables) != utf8.RuneCountInString(word) {
			continue
		}
		target := fallback
		if len(syllables) == 1 {
			target = primary
		}
		i := 0
		for _, c := range word {
			target.Add(c, syllables[i])
			i++
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("scan cedict: %w", err)
	}

	for c, p := range fallback {
		if _, ok := primary[c]; !ok {
			primary[c] = p
		}
	}
	return New(words), primary, nil
}
