package main

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// runCLI executes the root command in-process with HOME pointed at a temp
// dir so no user config is read.
func runCLI(t *testing.T, home, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", home)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if ctx.Err() == context.DeadlineExceeded {
		t.Fatalf("cli timed out, output:\n%s\n%s", out.String(), errOut.String())
	}
	return out.String(), err
}

func TestCLI_OfflineServer(t *testing.T) {
	tmp := t.TempDir()

	fixture := filepath.Join("..", "..", "pkg", "source", "testdata", "page.html")
	body, err := os.ReadFile(fixture)
	if err != nil {
		t.Fatalf("failed to read fixture: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(body)
	}))
	defer srv.Close()

	dbPath := filepath.Join(tmp, "langparser.db")
	htmlPath := filepath.Join(tmp, "out.html")

	out, err := runCLI(t, tmp, "", "parse", srv.URL, "--db", dbPath, "--lang", "kr", "--html", htmlPath)
	if err != nil {
		t.Fatalf("cli failed: %v\noutput:\n%s", err, out)
	}
	if !strings.Contains(out, "한글") {
		t.Fatalf("expected annotated text in output, got:\n%s", out)
	}

	page, err := os.ReadFile(htmlPath)
	if err != nil {
		t.Fatalf("expected html output: %v", err)
	}
	if !strings.Contains(string(page), `lang-parser-token-lang="kr"`) {
		t.Fatalf("expected annotated spans in page, got:\n%s", page)
	}

	dbConn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	defer dbConn.Close()

	var sources, tokens int
	if err := dbConn.QueryRow("SELECT COUNT(*) FROM sources").Scan(&sources); err != nil {
		t.Fatalf("db query failed: %v", err)
	}
	if sources != 1 {
		t.Fatalf("expected one source in DB, found %d", sources)
	}
	if err := dbConn.QueryRow("SELECT COUNT(*) FROM tokens WHERE variant = 'kr' AND entry IS NOT NULL").Scan(&tokens); err != nil {
		t.Fatalf("db query failed: %v", err)
	}
	// 안녕하세요 and 한글
	if tokens != 2 {
		t.Fatalf("expected 2 stored tokens, found %d", tokens)
	}
}

func TestCLI_WordLifecycle(t *testing.T) {
	tmp := t.TempDir()
	dbPath := filepath.Join(tmp, "words.db")
	common := []string{"--db", dbPath, "--lang", "zh_CN"}

	out, err := runCLI(t, tmp, "我是中国人\n", append([]string{"parse", "-", "-q"}, common...)...)
	if err != nil {
		t.Fatalf("parse failed: %v\n%s", err, out)
	}

	out, err = runCLI(t, tmp, "", append([]string{"stats", "--json"}, common...)...)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if !strings.Contains(out, `"full"`) {
		t.Fatalf("unexpected stats output:\n%s", out)
	}

	out, err = runCLI(t, tmp, "", append([]string{"word", "中国", "--cycle", "--notes", "China"}, common...)...)
	if err != nil {
		t.Fatalf("word failed: %v", err)
	}
	if !strings.Contains(out, "familiarity    1") || !strings.Contains(out, "China") {
		t.Fatalf("unexpected word output:\n%s", out)
	}
	if !strings.Contains(out, "chinese.yabla.com") {
		t.Fatalf("expected lookup link, got:\n%s", out)
	}

	out, err = runCLI(t, tmp, "我是中国人\n", append([]string{"mark-known", "-", "-q"}, common...)...)
	if err != nil {
		t.Fatalf("mark-known failed: %v", err)
	}
	if !strings.Contains(out, "Marked") {
		t.Fatalf("unexpected mark-known output:\n%s", out)
	}

	snapshot := filepath.Join(tmp, "snapshot.json")
	if _, err := runCLI(t, tmp, "", append([]string{"export", snapshot}, common...)...); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	data, err := os.ReadFile(snapshot)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"中国":{"memoryStatus":1,"notes":"China"`) {
		t.Fatalf("unexpected snapshot:\n%s", data)
	}

	other := filepath.Join(tmp, "other.db")
	out, err = runCLI(t, tmp, "", "import", snapshot, "--db", other)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if !strings.Contains(out, "zh_CN:") {
		t.Fatalf("unexpected import output:\n%s", out)
	}

	bad := filepath.Join(tmp, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"userStats":{}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := runCLI(t, tmp, "", "import", bad, "--db", other); err == nil {
		t.Fatal("expected malformed snapshot to be rejected")
	}
}

func TestCLI_Config(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "cfg", "config.yaml")

	if _, err := runCLI(t, tmp, "", "config", "init", "--path", path); err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	out, err := runCLI(t, tmp, "", "config", "show", "--config", path, "--lang", "kr")
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	if !strings.Contains(out, "language: kr") {
		t.Fatalf("expected flag override in config, got:\n%s", out)
	}

	out, err = runCLI(t, tmp, "", "version")
	if err != nil || !strings.HasPrefix(out, "langparser v") {
		t.Fatalf("unexpected version output %q, %v", out, err)
	}
}

func TestCLI_StatsDoesNotSave(t *testing.T) {
	tmp := t.TempDir()
	dbPath := filepath.Join(tmp, "stats.db")
	doc := filepath.Join(tmp, "lesson.txt")
	if err := os.WriteFile(doc, []byte("공부 시간\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, tmp, "", "stats", doc, "--db", dbPath, "--lang", "kr")
	if err != nil {
		t.Fatalf("stats failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "total") {
		t.Fatalf("unexpected stats output:\n%s", out)
	}

	dbConn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	defer dbConn.Close()
	var tokens, sources int
	if err := dbConn.QueryRow("SELECT COUNT(*) FROM tokens").Scan(&tokens); err != nil {
		t.Fatalf("db query failed: %v", err)
	}
	if err := dbConn.QueryRow("SELECT COUNT(*) FROM sources").Scan(&sources); err != nil {
		t.Fatalf("db query failed: %v", err)
	}
	if tokens != 0 || sources != 0 {
		t.Fatalf("expected stats to leave the db untouched, found %d tokens and %d sources", tokens, sources)
	}
}
