package script

import "strings"

// Chunk is a maximal run of text that is uniformly in or out of the target script.
type Chunk struct {
	Text  string
	Match bool
}

// ChunkText splits text into alternating non-target/target runs. The
// concatenation of the chunk texts always equals text and adjacent chunks
// never share the same Match flag. Empty input yields a single empty
// non-matching chunk.
func ChunkText(text string, isTarget Classifier) []Chunk {
	if text == "" {
		return []Chunk{{Text: "", Match: false}}
	}

	var chunks []Chunk
	start := 0
	current := false
	for i, r := range text {
		m := isTarget(r)
		if i == 0 {
			current = m
			continue
		}
		if m != current {
			chunks = append(chunks, Chunk{Text: text[start:i], Match: current})
			start = i
			current = m
		}
	}
	chunks = append(chunks, Chunk{Text: text[start:], Match: current})
	return chunks
}

// ContainsTarget reports whether text has at least one target-script character.
func ContainsTarget(text string, isTarget Classifier) bool {
	return strings.IndexFunc(text, isTarget) >= 0
}
