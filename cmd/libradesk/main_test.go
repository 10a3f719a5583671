package main

import (
	"bytes"
	"context"
	"libradesk/internal/circulation"
	"libradesk/internal/server"
	"libradesk/internal/stats"
	"libradesk/internal/storage/memory"
	"libradesk/internal/storage/storagetest"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		onDate, overrideCap, readerFilter, topN = "", false, "", 5
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func useSQLite(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("LIBRADESK_DB_DRIVER", "sqlite3")
	t.Setenv("DATABASE_URL", "file:"+filepath.Join(dir, "desk.db"))
	t.Setenv("LOG_LEVEL", "error")
	return dir
}

func TestImportThenExport(t *testing.T) {
	dir := useSQLite(t)

	in := filepath.Join(dir, "books.json")
	require.NoError(t, os.WriteFile(in, []byte(`[
		{"isbn":"B1","title":"Dune","author":"Herbert","year":1965,"status":"borrowed"},
		{"isbn":"B2","title":"Emma","author":"Austen","year":1815}
	]`), 0o600))

	out, err := execute(t, "import", "books", in)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 2, skipped 0 existing, 0 invalid")
	assert.Contains(t, out, "1 borrowed status reset to available")

	out, err = execute(t, "import", "books", in)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 0, skipped 2 existing")

	xmlOut := filepath.Join(dir, "books.xml")
	out, err = execute(t, "export", "books", xmlOut)
	require.NoError(t, err)
	assert.Contains(t, out, "exported 2 books")

	data, err := os.ReadFile(xmlOut)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<titre>Dune</titre>")
	assert.Contains(t, string(data), "<statut>disponible</statut>")
}

func TestImportRejectsUnknownKind(t *testing.T) {
	dir := useSQLite(t)
	in := filepath.Join(dir, "loans.json")
	require.NoError(t, os.WriteFile(in, []byte(`[]`), 0o600))

	_, err := execute(t, "import", "loans", in)
	assert.Error(t, err)
}

func TestMigrateRefusesMemoryStore(t *testing.T) {
	t.Setenv("LIBRADESK_DB_DRIVER", "memory")
	_, err := execute(t, "migrate")
	assert.Error(t, err)
}

func TestDeskCommandsAgainstServer(t *testing.T) {
	t.Setenv("LIBRADESK_DB_DRIVER", "memory")
	t.Setenv("LOG_LEVEL", "error")

	store := memory.NewStore()
	nop := zap.NewNop()
	engine := circulation.NewService(store, circulation.DefaultPolicy, nop)
	ctx := context.Background()
	_, err := engine.AddBook(ctx, storagetest.Book("B1"))
	require.NoError(t, err)
	_, err = engine.RegisterReader(ctx, storagetest.Reader("R1"))
	require.NoError(t, err)

	srv := httptest.NewServer(server.NewRouter(server.Config{
		Records: store,
		Engine:  engine,
		Stats:   stats.NewService(store, nop),
		Log:     nop,
	}))
	defer srv.Close()

	out, err := execute(t, "--server", srv.URL, "borrow", "B1", "R1", "--date", "2024-01-01")
	require.NoError(t, err)
	assert.Contains(t, out, "due 2024-01-15")

	out, err = execute(t, "--server", srv.URL, "overdue", "--date", "2024-01-20")
	require.NoError(t, err)
	assert.Contains(t, out, "B1")
	assert.Contains(t, out, "5")

	out, err = execute(t, "--server", srv.URL, "stats", "--date", "2024-01-20")
	require.NoError(t, err)
	assert.Contains(t, out, "overdue loans")

	_, err = execute(t, "--server", srv.URL, "borrow", "B1", "R1")
	assert.Error(t, err)

	loans, err := store.AllLoans(ctx)
	require.NoError(t, err)
	require.Len(t, loans, 1)
	out, err = execute(t, "--server", srv.URL, "return", loans[0].ID, "--date", "2024-01-20")
	require.NoError(t, err)
	assert.Contains(t, out, "returned on 2024-01-20")
}
