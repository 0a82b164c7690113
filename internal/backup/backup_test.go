package backup

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/datallboy/sheetflow/internal/domain"
	"github.com/datallboy/sheetflow/internal/infra/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeContainer struct {
	running bool
	err     error
}

func (f *fakeContainer) IsRunning(context.Context) (bool, error) {
	return f.running, f.err
}

type fixture struct {
	dataDir    string
	envFile    string
	archiveDir string
	container  *fakeContainer
	svc        *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		dataDir:    filepath.Join(root, "docker", "n8n-data"),
		envFile:    filepath.Join(root, "docker", ".env"),
		archiveDir: filepath.Join(root, "n8n-files", "user-data"),
		container:  &fakeContainer{},
	}
	f.svc = NewService(f.dataDir, f.envFile, f.archiveDir, f.container, logger.Discard())
	f.svc.now = func() time.Time { return time.Date(2025, 3, 4, 10, 20, 30, 0, time.Local) }
	return f
}

func (f *fixture) write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func (f *fixture) seed(t *testing.T) {
	f.write(t, filepath.Join(f.dataDir, "database.sqlite"), "sqlite-bytes")
	f.write(t, filepath.Join(f.dataDir, "config"), `{"encryptionKey":"abc"}`)
	f.write(t, filepath.Join(f.dataDir, "binaryData", "meta", "1.json"), "{}")
	f.write(t, filepath.Join(f.dataDir, ".first_run_done"), "")
	f.write(t, filepath.Join(f.dataDir, "nodes", "node_modules", "pkg", "index.js"), "module.exports={}")
	f.write(t, f.envFile, "N8N_HOST=localhost\nN8N_PORT=5678\n")
}

func entryNames(t *testing.T, archive string) []string {
	t.Helper()
	zr, err := zip.OpenReader(archive)
	require.NoError(t, err)
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

func TestExportWritesArchive(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	var reported []int
	res, err := f.svc.Export(context.Background(), func(pct int) { reported = append(reported, pct) })
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(f.archiveDir, "n8n_export_20250304_102030.zip"), res.Path)
	assert.Equal(t, 4, res.Files)
	assert.Equal(t, 2, res.EnvKeys)
	assert.Positive(t, res.Size)

	assert.ElementsMatch(t, []string{
		"n8n-data/database.sqlite",
		"n8n-data/config",
		"n8n-data/binaryData/meta/1.json",
		".env",
	}, entryNames(t, res.Path))

	require.NotEmpty(t, reported)
	assert.Equal(t, 100, reported[len(reported)-1])
	assert.IsIncreasing(t, reported)
}

func TestExportRefusedWhileRunning(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	f.container.running = true

	res, err := f.svc.Export(context.Background(), nil)
	require.ErrorIs(t, err, domain.ErrContainerRunning)
	assert.Nil(t, res)

	entries, _ := os.ReadDir(f.archiveDir)
	assert.Empty(t, entries)
}

func TestExportProceedsWhenStateUnknown(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	f.container.err = errors.New("docker: command not found")

	_, err := f.svc.Export(context.Background(), nil)
	assert.NoError(t, err)
}

func TestExportMissingDataDir(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Export(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "n8n-data directory not found")
}

func TestExportNothingToArchive(t *testing.T) {
	f := newFixture(t)
	f.write(t, filepath.Join(f.dataDir, ".first_run_done"), "")

	_, err := f.svc.Export(context.Background(), nil)
	require.ErrorIs(t, err, domain.ErrNothingToExport)
}

func TestImportRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	res, err := f.svc.Export(context.Background(), nil)
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(f.dataDir))
	require.NoError(t, os.Remove(f.envFile))

	var last int
	imp, err := f.svc.Import(context.Background(), res.Path, func(pct int) { last = pct })
	require.NoError(t, err)

	assert.Equal(t, 4, imp.Files)
	assert.Equal(t, 2, imp.EnvKeys)
	assert.Equal(t, "Successfully imported n8n data and .env file from n8n_export_20250304_102030.zip", imp.Message)
	assert.Equal(t, 100, last)

	got, err := os.ReadFile(filepath.Join(f.dataDir, "database.sqlite"))
	require.NoError(t, err)
	assert.Equal(t, "sqlite-bytes", string(got))

	got, err = os.ReadFile(filepath.Join(f.dataDir, "binaryData", "meta", "1.json"))
	require.NoError(t, err)
	assert.Equal(t, "{}", string(got))

	env, err := os.ReadFile(f.envFile)
	require.NoError(t, err)
	assert.Equal(t, "N8N_HOST=localhost\nN8N_PORT=5678\n", string(env))
}

func TestImportOverwritesExisting(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	res, err := f.svc.Export(context.Background(), nil)
	require.NoError(t, err)

	f.write(t, filepath.Join(f.dataDir, "config"), "changed")
	_, err = f.svc.Import(context.Background(), res.Path, nil)
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(f.dataDir, "config"))
	require.NoError(t, err)
	assert.Equal(t, `{"encryptionKey":"abc"}`, string(got))
}

func TestImportRejectsNonZip(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	bogus := filepath.Join(t.TempDir(), "export.zip")
	f.write(t, bogus, "definitely not a zip archive")

	_, err := f.svc.Import(context.Background(), bogus, nil)
	require.ErrorIs(t, err, domain.ErrNotZip)

	got, err := os.ReadFile(filepath.Join(f.dataDir, "database.sqlite"))
	require.NoError(t, err)
	assert.Equal(t, "sqlite-bytes", string(got))
}

func TestImportMissingArchive(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Import(context.Background(), filepath.Join(t.TempDir(), "nope.zip"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive file not found")
}

func TestImportRefusedWhileRunning(t *testing.T) {
	f := newFixture(t)
	f.container.running = true

	_, err := f.svc.Import(context.Background(), "whatever.zip", nil)
	require.ErrorIs(t, err, domain.ErrContainerRunning)
}

func TestImportRejectsEscapingEntries(t *testing.T) {
	f := newFixture(t)

	archive := filepath.Join(t.TempDir(), "evil.zip")
	out, err := os.Create(archive)
	require.NoError(t, err)
	zw := zip.NewWriter(out)
	w, err := zw.Create("n8n-data/ok.txt")
	require.NoError(t, err)
	_, _ = w.Write([]byte("fine"))
	w, err = zw.Create("n8n-data/../../escaped.txt")
	require.NoError(t, err)
	_, _ = w.Write([]byte("bad"))
	require.NoError(t, zw.Close())
	require.NoError(t, out.Close())

	_, err = f.svc.Import(context.Background(), archive, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes")

	_, err = os.Stat(filepath.Join(f.dataDir, "ok.txt"))
	assert.True(t, os.IsNotExist(err), "nothing is written when any entry is unsafe")
}

func TestTrackerStepsInFivePercentIncrements(t *testing.T) {
	var got []int
	tr := newTracker(40, func(pct int) { got = append(got, pct) })
	for i := 0; i < 40; i++ {
		tr.step()
	}
	tr.finish()

	for _, p := range got {
		assert.Zero(t, p%5, p)
	}
	assert.Equal(t, 100, got[len(got)-1])
	assert.IsIncreasing(t, got)
}
