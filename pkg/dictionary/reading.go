package dictionary

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// MissingReading is rendered for a character that has no table entry.
const MissingReading = "-"

// ReadingTable maps a single character to its romanized reading. A character
// with several readings stores them comma separated, primary first.
type ReadingTable map[rune]string

// Pronounce derives the reading of a word, one space-separated slot per
// character. A slot with alternates renders as "primary(alternates)"; an
// unmapped character renders as MissingReading. It never fails.
func (t ReadingTable) Pronounce(word string) string {
	slots := make([]string, 0, utf8.RuneCountInString(word))
	for _, r := range word {
		p := t[r]
		if p == "" {
			p = MissingReading
		}
		if strings.Contains(p, ",") {
			p = strings.Replace(p, ",", "(", 1) + ")"
		}
		slots = append(slots, p)
	}
	return strings.Join(slots, " ")
}

// Add records reading for r, keeping earlier readings first and skipping duplicates.
func (t ReadingTable) Add(r rune, reading string) {
	reading = strings.TrimSpace(reading)
	if reading == "" {
		return
	}
	existing, ok := t[r]
	if !ok || existing == "" {
		t[r] = reading
		return
	}
	for _, p := range strings.Split(existing, ",") {
		if p == reading {
			return
		}
	}
	t[r] = existing + "," + reading
}

// LoadReadings reads either a JSON object {"中": "zhong1,zhong4"} or
// tab-separated "char<TAB>reading" lines.
func LoadReadings(r io.Reader) (ReadingTable, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read reading table: %w", err)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return decodeReadingJSON(trimmed)
	}

	table := make(ReadingTable)
	sc := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		char, reading, ok := strings.Cut(line, "\t")
		if !ok || utf8.RuneCountInString(char) != 1 {
			return nil, fmt.Errorf("reading table line %d: want \"char<TAB>reading\", got %q", lineNo, line)
		}
		c, _ := utf8.DecodeRuneInString(char)
		for _, p := range strings.Split(reading, ",") {
			table.Add(c, p)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan reading table: %w", err)
	}
	return table, nil
}

func decodeReadingJSON(data []byte) (ReadingTable, error) {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode reading table: %w", err)
	}
	table := make(ReadingTable, len(raw))
	for k, v := range raw {
		if utf8.RuneCountInString(k) != 1 {
			return nil, fmt.Errorf("reading table key %q is not a single character", k)
		}
		c, _ := utf8.DecodeRuneInString(k)
		table[c] = v
	}
	return table, nil
}
