package langparser

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/langparser/pkg/db"
	"github.com/japaniel/langparser/pkg/dictionary"
	"github.com/japaniel/langparser/pkg/knowledge"
	"github.com/japaniel/langparser/pkg/reconcile"
	"github.com/japaniel/langparser/pkg/script"
	"github.com/japaniel/langparser/pkg/segment"
	"github.com/japaniel/langparser/pkg/source"
)

func testSegmenters(t *testing.T) *segment.Registry {
	t.Helper()
	dict := dictionary.New([]string{"中国", "中", "人"})
	readings := dictionary.ReadingTable{'中': "zhong1", '国': "guo2", '人': "ren2"}
	zh, err := segment.NewChinese(script.Mandarin, dict, readings, 0)
	require.NoError(t, err)
	return segment.NewRegistry(segment.Korean{}, zh)
}

func newEngine(t *testing.T, opts ...Option) (*Engine, *reconcile.Recorder) {
	t.Helper()
	rec := reconcile.NewRecorder()
	opts = append([]Option{WithSegmenters(testSegmenters(t)), WithSink(rec)}, opts...)
	e, err := New(opts...)
	require.NoError(t, err)
	return e, rec
}

func TestVersion(t *testing.T) {
	assert.NotEmpty(t, Version())
}

func TestEngineParse(t *testing.T) {
	t.Run("Should annotate and resolve every target token", func(t *testing.T) {
		e, rec := newEngine(t)
		rep, err := e.Parse(script.Mandarin, []reconcile.Region{{Handle: "p1", Text: "我是中国人"}})
		require.NoError(t, err)
		assert.Equal(t, 1, rep.Annotated)
		require.Contains(t, rec.Latest, reconcile.Handle("p1"))

		s, ok := e.Knowledge().Read(script.Mandarin, "中国")
		require.True(t, ok)
		assert.Equal(t, "zhong1 guo2", s.Pronunciation)
	})

	t.Run("Should report an unsupported variant", func(t *testing.T) {
		e, _ := newEngine(t, WithSegmenters(segment.NewRegistry(segment.Korean{})))
		_, err := e.Parse(script.Mandarin, []reconcile.Region{{Handle: "p1", Text: "中国"}})
		assert.ErrorIs(t, err, script.ErrUnsupportedVariant)
		_, err = e.GetStats(script.Cantonese)
		assert.ErrorIs(t, err, script.ErrUnsupportedVariant)
	})
}

func TestEngineMarkAllKnown(t *testing.T) {
	e, rec := newEngine(t)
	kb := e.Knowledge()
	require.NoError(t, kb.Write(script.Mandarin, "人", knowledge.TokenState{Familiarity: 2, Pronunciation: "ren2"}))

	_, err := e.Parse(script.Mandarin, []reconcile.Region{{Handle: "p1", Text: "中国人"}})
	require.NoError(t, err)
	require.NoError(t, kb.Write(script.Mandarin, "外", knowledge.TokenState{Pronunciation: "-"}))

	n, err := e.MarkAllKnown(script.Mandarin)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	s, _ := kb.Read(script.Mandarin, "中国")
	assert.Equal(t, knowledge.MaxFamiliarity, s.Familiarity)
	s, _ = kb.Read(script.Mandarin, "人")
	assert.Equal(t, 2, s.Familiarity, "progressed tokens are untouched")
	s, _ = kb.Read(script.Mandarin, "外")
	assert.Equal(t, 0, s.Familiarity, "tokens not visible are untouched")

	for _, in := range rec.Latest["p1"] {
		if in.Text == "中国" {
			assert.Equal(t, knowledge.MaxFamiliarity, in.Familiarity)
		}
	}

	st, err := e.GetStats(script.Mandarin)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Full.Total())
	assert.Equal(t, 2, st.Page.Total())
	assert.Equal(t, 1, st.Page[knowledge.MaxFamiliarity])
	assert.Equal(t, 1, st.Full[0])
}

func TestEngineSnapshot(t *testing.T) {
	e, rec := newEngine(t)
	_, err := e.Parse(script.Mandarin, []reconcile.Region{{Handle: "p1", Text: "中国"}})
	require.NoError(t, err)

	t.Run("Should reconcile annotations after a load", func(t *testing.T) {
		err := e.LoadSnapshot([]byte(`{"userStats":{},"tokens":{"zh_CN":{"中国":{"memoryStatus":3,"notes":"China","py":"zhong1 guo2"}}}}`))
		require.NoError(t, err)
		got := rec.Latest["p1"]
		require.Len(t, got, 1)
		assert.Equal(t, 3, got[0].Familiarity)
		assert.Equal(t, "China", got[0].Notes)
	})

	t.Run("Should keep state on a malformed snapshot", func(t *testing.T) {
		before, err := e.ExportSnapshot()
		require.NoError(t, err)
		err = e.LoadSnapshot([]byte(`{"userStats":{}}`))
		assert.ErrorIs(t, err, knowledge.ErrMalformedSnapshot)
		after, err := e.ExportSnapshot()
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})
}

func TestEngineEdit(t *testing.T) {
	e, rec := newEngine(t)
	_, err := e.Parse(script.Mandarin, []reconcile.Region{
		{Handle: "p1", Text: "中国"},
		{Handle: "p2", Text: "我爱中国"},
	})
	require.NoError(t, err)

	sess, err := e.Edit().Open(script.Mandarin, "中国")
	require.NoError(t, err)
	_, err = sess.Cycle()
	require.NoError(t, err)
	require.NoError(t, sess.SetNotes("China"))
	require.NoError(t, e.Close())

	for _, h := range []reconcile.Handle{"p1", "p2"} {
		for _, in := range rec.Latest[h] {
			if in.Text == "中国" {
				assert.Equal(t, 1, in.Familiarity, string(h))
				assert.Equal(t, "China", in.Notes, string(h))
			}
		}
	}
}

func TestEngineStore(t *testing.T) {
	conn, err := db.Open(":memory:")
	require.NoError(t, err)
	defer conn.Close()

	e, _ := newEngine(t, WithStore(conn), WithIngest(2, 10))
	doc := &source.Document{Kind: source.KindText, Title: "lesson", Regions: []reconcile.Region{
		{Handle: "L1", Text: "中国人"},
		{Handle: "L2", Text: "中国"},
	}}
	rep, n, err := e.ParseDocument(context.Background(), script.Mandarin, doc)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Annotated)
	assert.Equal(t, 3, n)
	require.NoError(t, e.Knowledge().Write(script.Mandarin, "中国", knowledge.TokenState{Familiarity: 2, Pronunciation: "zhong1 guo2"}))
	require.NoError(t, e.Close())

	t.Run("Should load the stored knowledgebase", func(t *testing.T) {
		again, _ := newEngine(t, WithStore(conn))
		s, ok := again.Knowledge().Read(script.Mandarin, "中国")
		require.True(t, ok)
		assert.Equal(t, 2, s.Familiarity)
	})

	t.Run("Should record occurrences once", func(t *testing.T) {
		_, n, err := e.ParseDocument(context.Background(), script.Mandarin, doc)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		tok, err := db.GetToken(conn, "zh_CN", "中国")
		require.NoError(t, err)
		ctxs, err := db.GetTokenContexts(conn, tok.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"中国人", "中国"}, ctxs)
	})

	t.Run("Should not write through a read-only store", func(t *testing.T) {
		ro, _ := newEngine(t, WithReadOnlyStore(conn))
		s, ok := ro.Knowledge().Read(script.Mandarin, "中国")
		require.True(t, ok)
		assert.Equal(t, 2, s.Familiarity)

		kr := &source.Document{Kind: source.KindText, Regions: []reconcile.Region{{Handle: "K1", Text: "공부 시간"}}}
		_, n, err := ro.ParseDocument(context.Background(), script.Korean, kr)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		st, err := ro.GetStats(script.Korean)
		require.NoError(t, err)
		assert.Equal(t, 2, st.Page[0])
		require.NoError(t, ro.Close())

		_, err = db.GetToken(conn, "kr", "공부")
		assert.ErrorIs(t, err, db.ErrNotFound)
	})
}

func TestLoadSegmenters(t *testing.T) {
	dir := t.TempDir()
	cedict := filepath.Join(dir, "cedict.txt")
	require.NoError(t, os.WriteFile(cedict, []byte("# test\n中國 中国 [Zhong1 guo2] /China/\n人 人 [ren2] /person/\n"), 0o644))
	words := filepath.Join(dir, "words.txt")
	require.NoError(t, os.WriteFile(words, []byte("廣東話\n"), 0o644))

	segs, err := LoadSegmenters(context.Background(), map[script.Variant]DictionaryFiles{
		script.Mandarin:  {CEDICT: cedict},
		script.Cantonese: {Words: words},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []script.Variant{script.Korean, script.Mandarin, script.Cantonese}, segs.Variants())

	zh, err := segs.For(script.Mandarin)
	require.NoError(t, err)
	assert.Equal(t, []string{"中国", "人"}, zh.Segment("中国人"))
	reading, _ := zh.Pronounce("中国")
	assert.Equal(t, "zhong1 guo2", reading)

	hk, err := segs.For(script.Cantonese)
	require.NoError(t, err)
	assert.Equal(t, []string{"廣東話"}, hk.Segment("廣東話"))

	t.Run("Should fail without a download url", func(t *testing.T) {
		_, err := LoadSegmenters(context.Background(), map[script.Variant]DictionaryFiles{
			script.Mandarin: {CEDICT: filepath.Join(dir, "missing.txt")},
		}, nil)
		assert.Error(t, err)
	})
}
