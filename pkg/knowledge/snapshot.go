package knowledge

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/japaniel/langparser/pkg/dictionary"
	"github.com/japaniel/langparser/pkg/script"
)

// Snapshot format:
//
//	{
//	  "userStats": {},
//	  "tokens": {
//	    "kr":    {"한글": {"memoryStatus": 3, "notes": "alphabet"}},
//	    "zh_CN": {"中国": {"memoryStatus": 0, "notes": "", "py": "zhong1 guo2"}}
//	  }
//	}
type snapshot struct {
	UserStats json.RawMessage                       `json:"userStats"`
	Tokens    map[string]map[string]json.RawMessage `json:"tokens"`
}

type wireState struct {
	MemoryStatus int     `json:"memoryStatus"`
	Notes        string  `json:"notes"`
	Py           *string `json:"py,omitempty"`
	Jy           *string `json:"jy,omitempty"`
}

// EncodeEntry returns the snapshot JSON of one token entry.
func EncodeEntry(v script.Variant, s TokenState) ([]byte, error) {
	w := wireState{MemoryStatus: s.Familiarity, Notes: s.Notes}
	switch readingKey(v) {
	case "py":
		w.Py = &s.Pronunciation
	case "jy":
		w.Jy = &s.Pronunciation
	}
	return json.Marshal(w)
}

// LegacyStatusKey is the familiarity field written by the browser
// extension's content script. It is read as an alias of memoryStatus and
// never written.
const LegacyStatusKey = "memory-status"

// entryStatus returns the familiarity field of an entry, preferring
// memoryStatus over LegacyStatusKey.
func entryStatus(raw []byte) gjson.Result {
	if r := gjson.GetBytes(raw, "memoryStatus"); r.Exists() {
		return r
	}
	return gjson.GetBytes(raw, LegacyStatusKey)
}

// decodeEntry validates an imported entry lazily. Only a numeric
// memoryStatus within range and a string notes field are required; a
// missing reading on a Chinese variant is derived.
func (b *Base) decodeEntry(v script.Variant, k string, raw []byte) (TokenState, bool) {
	status, notes := entryStatus(raw), gjson.GetBytes(raw, "notes")

	if status.Type != gjson.Number || notes.Type != gjson.String {
		b.log.Warn("token entry does not fit the expected format", "variant", v, "token", k)
		return TokenState{}, false
	}
	f := status.Int()
	if float64(f) != status.Float() || f < MinFamiliarity || f > MaxFamiliarity {
		b.log.Warn("token entry has invalid memoryStatus", "variant", v, "token", k, "memoryStatus", status.Raw)
		return TokenState{}, false
	}

	s := TokenState{Familiarity: int(f), Notes: notes.String()}
	if rk := readingKey(v); rk != "" {
		if reading := gjson.GetBytes(raw, rk); reading.Type == gjson.String && reading.String() != "" {
			s.Pronunciation = reading.String()
		} else {
			s.Pronunciation = b.pronounce(v, k)
		}
	}
	return s, true
}

func placeholderReading(word string) string {
	return strings.TrimSuffix(strings.Repeat(dictionary.MissingReading+" ", utf8.RuneCountInString(word)), " ")
}

// Export serializes the whole knowledgebase. Identical state always yields
// identical bytes. Entries that failed lazy validation, and variants this
// build does not know, are passed through verbatim.
func (b *Base) Export() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := snapshot{
		UserStats: json.RawMessage(b.userStats),
		Tokens:    make(map[string]map[string]json.RawMessage, len(b.tokens)),
	}
	for vk, bucket := range b.tokens {
		v := script.Variant(vk)
		out := make(map[string]json.RawMessage, len(bucket))
		for k, rec := range bucket {
			if _, err := script.ClassifierFor(v); err != nil {
				out[k] = json.RawMessage(rec.raw)
				continue
			}
			s, ok := b.readLocked(v, k)
			if !ok {
				out[k] = json.RawMessage(rec.raw)
				continue
			}
			enc, err := EncodeEntry(v, s)
			if err != nil {
				return nil, fmt.Errorf("encode %s/%s: %w", vk, k, err)
			}
			out[k] = enc
		}
		snap.Tokens[vk] = out
	}
	return json.Marshal(snap)
}

// Import replaces the entire knowledgebase with data. Only the top-level
// shape is checked here; per-token fields are validated lazily on read. On
// ErrMalformedSnapshot the current state is left untouched.
func (b *Base) Import(data []byte) error {
	if !gjson.ValidBytes(data) {
		b.log.Error("snapshot is not valid JSON")
		return fmt.Errorf("%w: invalid JSON", ErrMalformedSnapshot)
	}
	root := gjson.ParseBytes(data)
	tokens, userStats := root.Get("tokens"), root.Get("userStats")
	if !root.IsObject() || !tokens.Exists() || !userStats.Exists() {
		b.log.Error("snapshot has incorrect format", "hasTokens", tokens.Exists(), "hasUserStats", userStats.Exists())
		return fmt.Errorf("%w: want top-level tokens and userStats", ErrMalformedSnapshot)
	}
	if !tokens.IsObject() {
		return fmt.Errorf("%w: tokens is not an object", ErrMalformedSnapshot)
	}

	next := make(map[string]map[string]*record)
	var bad error
	tokens.ForEach(func(variant, entries gjson.Result) bool {
		if !entries.IsObject() {
			bad = fmt.Errorf("%w: tokens.%s is not an object", ErrMalformedSnapshot, variant.String())
			return false
		}
		bucket := make(map[string]*record)
		next[variant.String()] = bucket
		// Keys are normalized; when two keys collide the already-normalized one wins.
		type pending struct {
			orig string
			raw  []byte
		}
		var keys []pending
		entries.ForEach(func(word, entry gjson.Result) bool {
			keys = append(keys, pending{orig: word.String(), raw: []byte(entry.Raw)})
			return true
		})
		sort.Slice(keys, func(i, j int) bool { return keys[i].orig < keys[j].orig })
		for _, p := range keys {
			k := key(p.orig)
			if _, dup := bucket[k]; dup && p.orig != k {
				continue
			}
			bucket[k] = &record{raw: p.raw}
		}
		return true
	})
	if bad != nil {
		b.log.Error("snapshot rejected", "err", bad)
		return bad
	}

	b.mu.Lock()
	b.tokens = next
	b.userStats = []byte(userStats.Raw)
	b.generation++
	listeners := b.listeners
	b.mu.Unlock()

	b.log.Info("loaded knowledgebase snapshot", "variants", len(next))
	notify(listeners, Change{Kind: Replaced})
	return nil
}
