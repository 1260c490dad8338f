package dictionary

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Dictionary is an immutable word list bucketed by character length. Each
// bucket is strictly sorted so membership is a binary search.
type Dictionary struct {
	byLength  map[int][]string
	maxLength int
	size      int
}

// New builds a Dictionary from words. Blank and duplicate words are dropped.
func New(words []string) *Dictionary {
	buckets := make(map[int][]string)
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		n := utf8.RuneCountInString(w)
		buckets[n] = append(buckets[n], w)
	}

	d := &Dictionary{byLength: make(map[int][]string, len(buckets))}
	for n, bucket := range buckets {
		sort.Strings(bucket)
		uniq := bucket[:0]
		for _, w := range bucket {
			if len(uniq) > 0 && uniq[len(uniq)-1] == w {
				continue
			}
			uniq = append(uniq, w)
		}
		d.byLength[n] = uniq
		d.size += len(uniq)
		if n > d.maxLength {
			d.maxLength = n
		}
	}
	return d
}

// Contains reports whether word is in the dictionary.
func (d *Dictionary) Contains(word string) bool {
	if d == nil {
		return false
	}
	bucket, ok := d.byLength[utf8.RuneCountInString(word)]
	if !ok {
		return false
	}
	i := sort.SearchStrings(bucket, word)
	return i < len(bucket) && bucket[i] == word
}

// MaxLength is the character length of the longest word.
func (d *Dictionary) MaxLength() int {
	if d == nil {
		return 0
	}
	return d.maxLength
}

// Len is the number of distinct words.
func (d *Dictionary) Len() int {
	if d == nil {
		return 0
	}
	return d.size
}

// Words returns every word of the given length in sorted order.
func (d *Dictionary) Words(length int) []string {
	if d == nil {
		return nil
	}
	return append([]string(nil), d.byLength[length]...)
}

// LoadBuckets reads the bucketed JSON form:
//
//	{"max": 4, "1": ["中", ...], "2": ["中国", ...], ...}
//
// Buckets are re-sorted and re-counted, so a bucket whose words have the wrong
// length or order still yields a valid Dictionary.
func LoadBuckets(r io.Reader) (*Dictionary, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode dictionary buckets: %w", err)
	}
	var words []string
	for key, msg := range raw {
		if key == "max" {
			continue
		}
		if _, err := strconv.Atoi(key); err != nil {
			return nil, fmt.Errorf("unexpected bucket key %q", key)
		}
		var bucket []string
		if err := json.Unmarshal(msg, &bucket); err != nil {
			return nil, fmt.Errorf("decode bucket %s: %w", key, err)
		}
		words = append(words, bucket...)
	}
	return New(words), nil
}

// LoadWordList reads one word per line. Lines starting with '#' are comments.
func LoadWordList(r io.Reader) (*Dictionary, error) {
	var words []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// Allow "word<TAB>anything" lines so frequency lists load directly.
		if i := strings.IndexAny(line, "\t "); i > 0 {
			line = line[:i]
		}
		words = append(words, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read word list: %w", err)
	}
	return New(words), nil
}
