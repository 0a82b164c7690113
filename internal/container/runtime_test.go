package container

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/datallboy/sheetflow/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDocker puts a docker stand-in on PATH whose `ps` prints names.
func fakeDocker(t *testing.T, names string) {
	t.Helper()
	bin := t.TempDir()
	script := "#!/usr/bin/env bash\nif [ \"$1\" = \"ps\" ]; then printf '%s' \"" + names + "\"; exit 0; fi\nexit 1\n"
	require.NoError(t, os.WriteFile(filepath.Join(bin, "docker"), []byte(script), 0o755))
	t.Setenv("PATH", bin+":"+os.Getenv("PATH"))
}

func TestIsRunning(t *testing.T) {
	fakeDocker(t, `postgres\nn8n-custom\n`)
	rt := NewRuntime("docker", "n8n-custom", t.TempDir(), "start-n8n.sh", "stop-n8n.sh")

	running, err := rt.IsRunning(context.Background())
	require.NoError(t, err)
	assert.True(t, running)

	status, err := rt.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, status)
}

func TestIsRunningNotListed(t *testing.T) {
	fakeDocker(t, `postgres\n`)
	rt := NewRuntime("docker", "n8n-custom", t.TempDir(), "start-n8n.sh", "stop-n8n.sh")

	status, err := rt.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusStopped, status)
}

func TestIsRunningMissingBinary(t *testing.T) {
	rt := NewRuntime(filepath.Join(t.TempDir(), "no-such-docker"), "n8n-custom", t.TempDir(), "a.sh", "b.sh")

	status, err := rt.Status(context.Background())
	require.Error(t, err)
	assert.Equal(t, StatusUnknown, status)
}

func TestScriptsRunInTheirDirectory(t *testing.T) {
	dir := t.TempDir()
	start := "#!/usr/bin/env bash\npwd > started.txt\n"
	stop := "#!/usr/bin/env bash\necho 'compose down failed' >&2\nexit 3\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "start-n8n.sh"), []byte(start), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stop-n8n.sh"), []byte(stop), 0o755))

	rt := NewRuntime("docker", "n8n-custom", dir, "start-n8n.sh", "stop-n8n.sh")

	require.NoError(t, rt.Start(context.Background()))
	out, err := os.ReadFile(filepath.Join(dir, "started.txt"))
	require.NoError(t, err)
	resolved, _ := filepath.EvalSymlinks(dir)
	assert.Contains(t, []string{dir, resolved}, string(out[:len(out)-1]))

	err = rt.Stop(context.Background())
	require.ErrorIs(t, err, domain.ErrScriptFailed)
	assert.Contains(t, err.Error(), "code 3")
	assert.Contains(t, err.Error(), "compose down failed")
}
