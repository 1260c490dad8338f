package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/tidwall/gjson"
)

// ErrNotFound is returned when a looked up row does not exist.
var ErrNotFound = errors.New("not found")

// DBExecutor is an interface that allows methods to accept either *sql.DB or *sql.Tx
type DBExecutor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// isUniqueConstraintErr returns true when the error indicates a unique/constraint violation
func isUniqueConstraintErr(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrConstraint
	}
	return false
}

// entryColumns extracts the queryable columns of a snapshot entry. Entries
// without an integer memoryStatus (or the older memory-status) get NULL
// columns.
func entryColumns(entry []byte) (status, notes, pron interface{}) {
	f := gjson.GetManyBytes(entry, "memoryStatus", "notes", "py", "jy", "memory-status")
	if !f[0].Exists() {
		f[0] = f[4]
	}
	f = f[:4]
	if f[0].Type != gjson.Number || float64(f[0].Int()) != f[0].Float() {
		return nil, nil, nil
	}
	status = f[0].Int()
	if f[1].Type == gjson.String {
		notes = f[1].String()
	}
	for _, r := range f[2:] {
		if r.Type == gjson.String {
			pron = r.String()
		}
	}
	return status, notes, pron
}

// UpsertToken stores the snapshot entry of (variant, text) and returns the token id.
func UpsertToken(db DBExecutor, variant, text string, entry []byte) (int64, error) {
	if strings.TrimSpace(text) == "" {
		return 0, fmt.Errorf("token text must be non-empty")
	}
	if !gjson.ValidBytes(entry) {
		return 0, fmt.Errorf("token %s/%s: entry is not valid JSON", variant, text)
	}
	status, notes, pron := entryColumns(entry)

	var id int64
	err := db.QueryRow(`INSERT INTO tokens (variant, text, entry, memory_status, notes, pronunciation, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(variant, text) DO UPDATE SET
		  entry = excluded.entry,
		  memory_status = excluded.memory_status,
		  notes = excluded.notes,
		  pronunciation = excluded.pronunciation,
		  updated_at = excluded.updated_at
		RETURNING id`,
		variant, text, string(entry), status, notes, pron, time.Now()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert token: %w", err)
	}
	return id, nil
}

// CreateOrGetToken returns the id of (variant, text), inserting a row
// without an entry when the token is not stored yet.
func CreateOrGetToken(db DBExecutor, variant, text string) (int64, error) {
	if strings.TrimSpace(text) == "" {
		return 0, fmt.Errorf("token text must be non-empty")
	}
	var id int64
	err := db.QueryRow(`INSERT INTO tokens (variant, text) VALUES (?, ?)
		ON CONFLICT(variant, text) DO UPDATE SET variant = tokens.variant
		RETURNING id`, variant, text).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create or get token: %w", err)
	}
	return id, nil
}

const tokenColumns = `t.id, t.variant, t.text, t.entry, t.memory_status, t.notes, t.pronunciation, t.updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanToken(row rowScanner, extra ...interface{}) (Token, error) {
	var t Token
	var entry, notes, pron sql.NullString
	var status sql.NullInt64
	dest := append([]interface{}{&t.ID, &t.Variant, &t.Text, &entry, &status, &notes, &pron, &t.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return Token{}, err
	}
	t.Entry = entry.String
	t.MemoryStatus = int(status.Int64)
	t.Notes = notes.String
	t.Pronunciation = pron.String
	return t, nil
}

// GetToken returns the stored token (variant, text) or ErrNotFound.
func GetToken(db DBExecutor, variant, text string) (Token, error) {
	row := db.QueryRow(`SELECT `+tokenColumns+` FROM tokens t WHERE t.variant = ? AND t.text = ? AND t.entry IS NOT NULL`, variant, text)
	t, err := scanToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Token{}, fmt.Errorf("token %s/%s: %w", variant, text, ErrNotFound)
	}
	if err != nil {
		return Token{}, fmt.Errorf("get token: %w", err)
	}
	return t, nil
}

// ListTokens returns the stored tokens of variant ordered by text. An empty
// variant lists every variant.
func ListTokens(db DBExecutor, variant string) ([]Token, error) {
	rows, err := db.Query(`SELECT `+tokenColumns+` FROM tokens t
		WHERE t.entry IS NOT NULL AND (? = '' OR t.variant = ?)
		ORDER BY t.variant, t.text`, variant, variant)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()
	var out []Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SaveSnapshot makes the stored tokens and user stats mirror a whole
// knowledgebase snapshot. Tokens missing from the snapshot keep their
// provenance rows but lose their entry.
func SaveSnapshot(db DBExecutor, snapshot []byte) error {
	if !gjson.ValidBytes(snapshot) {
		return fmt.Errorf("save snapshot: invalid JSON")
	}
	root := gjson.ParseBytes(snapshot)
	userStats := root.Get("userStats")
	if !userStats.Exists() {
		return fmt.Errorf("save snapshot: missing userStats")
	}

	if _, err := db.Exec(`UPDATE tokens SET entry = NULL, memory_status = NULL, notes = NULL, pronunciation = NULL`); err != nil {
		return fmt.Errorf("clear tokens: %w", err)
	}
	if _, err := db.Exec(`UPDATE user_stats SET data = ? WHERE id = 1`, userStats.Raw); err != nil {
		return fmt.Errorf("save user stats: %w", err)
	}

	var saveErr error
	root.Get("tokens").ForEach(func(variant, entries gjson.Result) bool {
		entries.ForEach(func(text, entry gjson.Result) bool {
			if _, err := UpsertToken(db, variant.String(), text.String(), []byte(entry.Raw)); err != nil {
				saveErr = err
				return false
			}
			return true
		})
		return saveErr == nil
	})
	return saveErr
}

// LoadSnapshot assembles the stored tokens and user stats into a snapshot
// suitable for knowledge.Base.Import.
func LoadSnapshot(db DBExecutor) ([]byte, error) {
	var stats string
	if err := db.QueryRow(`SELECT data FROM user_stats WHERE id = 1`).Scan(&stats); err != nil {
		return nil, fmt.Errorf("load user stats: %w", err)
	}

	rows, err := db.Query(`SELECT variant, text, entry FROM tokens WHERE entry IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("load tokens: %w", err)
	}
	defer rows.Close()

	tokens := make(map[string]map[string]json.RawMessage)
	for rows.Next() {
		var variant, text, entry string
		if err := rows.Scan(&variant, &text, &entry); err != nil {
			return nil, err
		}
		bucket, ok := tokens[variant]
		if !ok {
			bucket = make(map[string]json.RawMessage)
			tokens[variant] = bucket
		}
		bucket[text] = json.RawMessage(entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return json.Marshal(struct {
		UserStats json.RawMessage                       `json:"userStats"`
		Tokens    map[string]map[string]json.RawMessage `json:"tokens"`
	}{json.RawMessage(stats), tokens})
}

// CreateOrGetSource returns existing source id or inserts a new source and returns its id.
func CreateOrGetSource(db DBExecutor, sourceType, title, author, website, url, meta string) (int64, error) {
	trimmedSourceType := strings.TrimSpace(sourceType)
	if trimmedSourceType == "" {
		return 0, fmt.Errorf("sourceType must be non-empty")
	}

	const maxRetries = 3

	var id int64
	for attempt := 0; attempt < maxRetries; attempt++ {
		err := db.QueryRow(
			`SELECT id FROM sources WHERE IFNULL(url, '') = ? AND IFNULL(title, '') = ? AND IFNULL(author, '') = ?`,
			url, title, author,
		).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, err
		}

		res, err := db.Exec(
			`INSERT INTO sources (source_type, title, author, website, url, meta) VALUES (?, ?, ?, ?, ?, ?)`,
			trimmedSourceType, title, author, website, url, meta,
		)
		if err != nil {
			// Another connection inserted the same source; select it.
			if isUniqueConstraintErr(err) {
				continue
			}
			return 0, err
		}
		return res.LastInsertId()
	}

	return 0, fmt.Errorf("could not create or get source after %d retries", maxRetries)
}

// GetSource returns the source with id or ErrNotFound.
func GetSource(db DBExecutor, id int64) (Source, error) {
	var s Source
	var title, author, website, url, meta sql.NullString
	err := db.QueryRow(`SELECT id, source_type, title, author, website, url, meta, added_at FROM sources WHERE id = ?`, id).
		Scan(&s.ID, &s.SourceType, &title, &author, &website, &url, &meta, &s.AddedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Source{}, fmt.Errorf("source %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Source{}, err
	}
	s.Title, s.Author, s.Website, s.URL, s.Meta = title.String, author.String, website.String, url.String, meta.String
	return s, nil
}

func getOrCreateSentence(db DBExecutor, text string) (int64, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0, nil
	}
	var id int64
	if err := db.QueryRow(`SELECT id FROM sentences WHERE text = ?`, trimmed).Scan(&id); err == nil {
		return id, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	// Insert if missing (concurrent-safe via UNIQUE constraint)
	if _, err := db.Exec(`INSERT OR IGNORE INTO sentences (text) VALUES (?)`, trimmed); err != nil {
		return 0, err
	}
	if err := db.QueryRow(`SELECT id FROM sentences WHERE text = ?`, trimmed).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// maxContexts bounds the stored context sentences per token and source.
const maxContexts = 5

// LinkTokenToSource records incrementAmount occurrences of a token in a
// source, with the region text it was seen in as context.
func LinkTokenToSource(db DBExecutor, tokenID, sourceID int64, context string, incrementAmount int) error {
	if tokenID <= 0 {
		return fmt.Errorf("tokenID must be positive")
	}
	if sourceID <= 0 {
		return fmt.Errorf("sourceID must be positive")
	}
	if incrementAmount < 1 {
		return fmt.Errorf("incrementAmount must be positive, got %d", incrementAmount)
	}

	ctxID, err := getOrCreateSentence(db, context)
	if err != nil {
		return fmt.Errorf("get/create context sentence: %w", err)
	}

	var tokenSourceID int64
	err = db.QueryRow(`INSERT INTO token_sources (token_id, source_id, context_sentence_id, occurrence_count, first_seen_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(token_id, source_id) DO UPDATE SET
	  occurrence_count = token_sources.occurrence_count + excluded.occurrence_count,
	  context_sentence_id = COALESCE(excluded.context_sentence_id, token_sources.context_sentence_id)
	RETURNING id`, tokenID, sourceID, nullableInt64(ctxID), incrementAmount, time.Now()).Scan(&tokenSourceID)
	if err != nil {
		return fmt.Errorf("link token: %w", err)
	}
	if ctxID == 0 {
		return nil
	}

	_, err = db.Exec(`
		INSERT INTO token_contexts (token_source_id, sentence_id)
		SELECT ?, ?
		WHERE (SELECT COUNT(*) FROM token_contexts WHERE token_source_id = ?) < ?
		ON CONFLICT DO NOTHING`,
		tokenSourceID, ctxID, tokenSourceID, maxContexts)
	return err
}

// nullableInt64 returns nil for 0 (meaning no sentence) else the value.
func nullableInt64(v int64) interface{} {
	if v == 0 {
		return nil
	}
	return v
}

// GetTokensBySource returns the tokens seen in a source with their counts,
// most frequent first.
func GetTokensBySource(db DBExecutor, sourceID int64) ([]TokenOccurrence, error) {
	rows, err := db.Query(`SELECT `+tokenColumns+`, ts.occurrence_count, ts.first_seen_at
		FROM tokens t JOIN token_sources ts ON ts.token_id = t.id
		WHERE ts.source_id = ?
		ORDER BY ts.occurrence_count DESC, t.text`, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TokenOccurrence
	for rows.Next() {
		var occ TokenOccurrence
		t, err := scanToken(rows, &occ.OccurrenceCount, &occ.FirstSeenAt)
		if err != nil {
			return nil, err
		}
		occ.Token = t
		out = append(out, occ)
	}
	return out, rows.Err()
}

// GetTokenContexts returns up to five region texts a token was seen in.
func GetTokenContexts(db DBExecutor, tokenID int64) ([]string, error) {
	rows, err := db.Query(`SELECT s.text FROM token_contexts tc
		JOIN token_sources ts ON ts.id = tc.token_source_id
		JOIN sentences s ON s.id = tc.sentence_id
		WHERE ts.token_id = ?
		ORDER BY s.id`, tokenID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetSourceProgress returns the number of regions of a source already linked.
func GetSourceProgress(db DBExecutor, sourceID int64) (int, error) {
	var index int
	err := db.QueryRow("SELECT last_processed_region FROM sources WHERE id = ?", sourceID).Scan(&index)
	if err != nil {
		return 0, err
	}
	return index, nil
}

// UpdateSourceProgress records that the first index regions of a source are linked.
func UpdateSourceProgress(db DBExecutor, sourceID int64, index int) error {
	_, err := db.Exec("UPDATE sources SET last_processed_region = ? WHERE id = ?", index, sourceID)
	return err
}
