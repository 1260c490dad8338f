package db

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func tableColumns(t *testing.T, conn *sql.DB, table string) map[string]bool {
	t.Helper()
	rows, err := conn.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("pragmas: %v", err)
	}
	defer rows.Close()
	cols := map[string]bool{}
	for rows.Next() {
		var cid int
		var colName, ctype string
		var notnull, pk int
		var dfltVal interface{}
		if err := rows.Scan(&cid, &colName, &ctype, &notnull, &dfltVal, &pk); err != nil {
			t.Fatalf("scan col: %v", err)
		}
		cols[colName] = true
	}
	return cols
}

// TestInitDBCreatesSchema verifies InitDB creates every table with the
// expected columns and can run twice on the same database.
func TestInitDBCreatesSchema(t *testing.T) {
	dbConn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer dbConn.Close()
	dbConn.SetMaxOpenConns(1)

	if err := InitDB(dbConn); err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	if err := InitDB(dbConn); err != nil {
		t.Fatalf("second InitDB failed: %v", err)
	}

	for _, table := range []string{"tokens", "user_stats", "sources", "sentences", "token_sources", "token_contexts"} {
		var name string
		if err := dbConn.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}

	cols := tableColumns(t, dbConn, "tokens")
	for _, c := range []string{"variant", "text", "entry", "memory_status", "notes", "pronunciation"} {
		if !cols[c] {
			t.Fatalf("expected %s in tokens, got %v", c, cols)
		}
	}
	if !tableColumns(t, dbConn, "sources")["last_processed_region"] {
		t.Fatal("expected last_processed_region in sources")
	}

	var stats string
	if err := dbConn.QueryRow("SELECT data FROM user_stats WHERE id = 1").Scan(&stats); err != nil {
		t.Fatalf("user_stats row missing: %v", err)
	}
	if stats != "{}" {
		t.Fatalf("expected empty user stats, got %q", stats)
	}
}

func TestOpenFile(t *testing.T) {
	path := t.TempDir() + "/langparser.db"
	conn, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := UpsertToken(conn, "kr", "한글", []byte(`{"memoryStatus":1,"notes":""}`)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	conn.Close()

	conn, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer conn.Close()
	tok, err := GetToken(conn, "kr", "한글")
	if err != nil {
		t.Fatalf("get token after reopen: %v", err)
	}
	if tok.MemoryStatus != 1 {
		t.Fatalf("expected memory status 1, got %d", tok.MemoryStatus)
	}
}
