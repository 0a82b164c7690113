package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:5678/webhook/trigger", cfg.WebhookURL())
	assert.Equal(t, "http://localhost:5678/webhook-test/trigger", cfg.TestWebhookURL())
	assert.Equal(t, "default.docx", cfg.N8N.Template)
	assert.Equal(t, 3*time.Second, cfg.Download.Timeout)
	assert.Equal(t, 5*time.Minute, cfg.Watch.Timeout)
	assert.Equal(t, "n8n-custom", cfg.Container.Name)
	assert.Equal(t, "0.0.0.0:5679", cfg.Callback.Listen)

	layout := cfg.Layout()
	assert.Equal(t, filepath.Join("n8n-files", "sheets"), layout.InboxDir())
	assert.Equal(t, filepath.Join("src", "docker-n8n", "n8n-data"), layout.DataDir())
	assert.Equal(t, filepath.Join("src", "docker-n8n", ".env"), layout.EnvFile())
}

func TestLoadExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
paths:
  root: /srv/project
n8n:
  base_url: http://n8n.local:5678/
  template: report.docx
watch:
  interval: 1s
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	t.Setenv("SHEETFLOW_CONTAINER_NAME", "n8n-test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://n8n.local:5678/webhook/trigger", cfg.WebhookURL())
	assert.Equal(t, "report.docx", cfg.N8N.Template)
	assert.Equal(t, time.Second, cfg.Watch.Interval)
	assert.Equal(t, "n8n-test", cfg.Container.Name)
	assert.Equal(t, "/srv/project/n8n-files/user-data", cfg.Layout().UserDataDir())
	assert.Equal(t, "/srv/project/n8n-files/.sheetflow/runs.db", cfg.ResolvePath(cfg.Store.SQLitePath))
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: mysql\n"), 0o644))

	_, err := Load(path)
	require.ErrorContains(t, err, "unknown store.driver")
}

func TestValidatePostgresNeedsDSN(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: postgres\n"), 0o644))

	_, err := Load(path)
	require.ErrorContains(t, err, "postgres_dsn")
}
