package db

import "time"

// Token is the durable copy of one knowledgebase entry. Entry holds the
// snapshot JSON of the entry verbatim; the other state columns are extracted
// from it for querying and are zero when the entry is not well formed.
type Token struct {
	ID            int64
	Variant       string
	Text          string
	Entry         string
	MemoryStatus  int
	Notes         string
	Pronunciation string
	UpdatedAt     time.Time
}

// Source is a provenance record for where a token was seen.
type Source struct {
	ID         int64
	SourceType string
	Title      string
	Author     string
	Website    string
	URL        string
	Meta       string
	AddedAt    time.Time
}

// TokenOccurrence is a token together with how often one source showed it.
type TokenOccurrence struct {
	Token
	OccurrenceCount int
	FirstSeenAt     time.Time
}
