package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/workflow-translator/internal/storage/local"
	"github.com/JakeFAU/workflow-translator/internal/translate"
)

var esLangs = translate.Langs{Source: "en", Target: "es"}

func newStore(t *testing.T) (*local.Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := local.NewStore(local.StoreConfig{BaseDir: dir})
	require.NoError(t, err)
	return store, dir
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	// #nosec G304 -- test reads from the controlled temp directory.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestStoreCreatesLayout(t *testing.T) {
	t.Parallel()

	_, dir := newStore(t)
	for _, sub := range []string{"translation", "config", "term"} {
		info, err := os.Stat(filepath.Join(dir, sub))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestStoreAppendTranslation(t *testing.T) {
	t.Parallel()

	store, dir := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.AppendTranslation(ctx, "book", esLangs, "uno"))
	require.NoError(t, store.AppendTranslation(ctx, "book", esLangs, "dos\ntres"))

	got := readFile(t, filepath.Join(dir, "translation", "book_en2es.txt"))
	assert.Equal(t, "uno\ndos\ntres\n", got)
}

func TestStoreRewriteTerminology(t *testing.T) {
	t.Parallel()

	store, dir := newStore(t)
	ctx := context.Background()
	path := filepath.Join(dir, "term", "book_term.txt")

	require.NoError(t, store.RewriteTerminology(ctx, "book", ""))
	_, err := os.Stat(path)
	require.ErrorIs(t, err, os.ErrNotExist, "empty terminology is not written")

	require.NoError(t, store.RewriteTerminology(ctx, "book", "cat=gato\ndog=perro"))
	require.NoError(t, store.RewriteTerminology(ctx, "book", "cat=gato"))
	assert.Equal(t, "cat=gato", readFile(t, path))

	entries, err := os.ReadDir(filepath.Join(dir, "term"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files left behind")
}

func TestStoreCursorRoundTrip(t *testing.T) {
	t.Parallel()

	store, dir := newStore(t)
	ctx := context.Background()

	_, ok, err := store.LoadCursor(ctx, "book")
	require.NoError(t, err)
	assert.False(t, ok)

	cursor := translate.Cursor{TargetLang: "es", SourceLang: "en", HistoryLines: 40}
	require.NoError(t, store.RewriteCursor(ctx, "book", cursor))
	assert.JSONEq(t,
		`{"target_lang":"es","source_lang":"en","history_lines":40}`,
		readFile(t, filepath.Join(dir, "config", "book.json")),
	)

	loaded, ok, err := store.LoadCursor(ctx, "book")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, cursor, loaded)
}

func TestStoreLoadCursorRejectsGarbage(t *testing.T) {
	t.Parallel()

	store, dir := newStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "book.json"), []byte("{"), 0o600))

	_, _, err := store.LoadCursor(context.Background(), "book")
	require.ErrorContains(t, err, "decode cursor")
}

func TestStoreRejectsTraversal(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t)
	ctx := context.Background()
	require.Error(t, store.AppendTranslation(ctx, "../evil", esLangs, "x"))
	require.Error(t, store.RewriteCursor(ctx, "a/b", translate.Cursor{}))
	require.Error(t, store.RewriteTerminology(ctx, `..\x`, "t"))

	_, err := local.NewStore(local.StoreConfig{BaseDir: t.TempDir(), TranslationDir: "../out"})
	require.Error(t, err)
}

func TestStorePaths(t *testing.T) {
	t.Parallel()

	store, dir := newStore(t)
	path, err := store.TranslationPath("novel", translate.Langs{Source: "ja", Target: "en"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "translation", "novel_ja2en.txt"), path)

	path, err = store.TermPath("novel")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, filepath.Join("term", "novel_term.txt")))
}
