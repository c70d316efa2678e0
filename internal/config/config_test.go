package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lordbuffcloud/srv"
)

func TestParsePreservesOrder(t *testing.T) {
	f, warns, err := Parse([]byte(`
services:
  db:
    command: postgres -D /data
  api:
    command: python app.py
    directory: ~/projects/api
    delay: 1.5
    venv: ~/venvs/api
    env_vars:
      PORT: "8080"
    logs_dir: ~/logs
  web:
    command: npm start
`))
	require.NoError(t, err)
	require.Empty(t, warns)
	require.Len(t, f.Specs, 3)

	names := []string{f.Specs[0].Name, f.Specs[1].Name, f.Specs[2].Name}
	assert.Equal(t, []string{"db", "api", "web"}, names)

	api := f.Specs[1]
	assert.Equal(t, "python app.py", api.Command)
	assert.Equal(t, "~/projects/api", api.Directory)
	assert.Equal(t, 1500*time.Millisecond, api.Delay)
	assert.Equal(t, "~/venvs/api", api.Venv)
	assert.Equal(t, map[string]string{"PORT": "8080"}, api.Env)
	assert.Equal(t, "~/logs", api.LogDir)
}

func TestParseDuplicateName(t *testing.T) {
	f, warns, err := Parse([]byte(`
services:
  web:
    command: npm start
  web:
    command: npm run dev
`))
	require.NoError(t, err)
	require.Len(t, f.Specs, 1)
	assert.Equal(t, "npm start", f.Specs[0].Command, "first definition wins")

	require.Len(t, warns, 1)
	var cerr *srv.ConfigError
	require.ErrorAs(t, warns[0], &cerr)
	assert.Equal(t, "web", cerr.Service)
}

func TestParseInvalidServiceIsSkipped(t *testing.T) {
	f, warns, err := Parse([]byte(`
services:
  empty:
    command: ""
  ok:
    command: sleep 60
`))
	require.NoError(t, err)
	require.Len(t, f.Specs, 1)
	assert.Equal(t, "ok", f.Specs[0].Name)
	require.Len(t, warns, 1)
}

func TestParseEmptyAndMissingServices(t *testing.T) {
	f, warns, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, f.Specs)
	assert.Empty(t, warns)

	f, _, err = Parse([]byte("other: thing\n"))
	require.NoError(t, err)
	assert.Empty(t, f.Specs)
}

func TestParseMalformedYAML(t *testing.T) {
	_, _, err := Parse([]byte("services:\n  web: [unclosed"))
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "srv.yaml")
	require.NoError(t, os.WriteFile(path, []byte("services:\n  a:\n    command: sleep 60\n"), 0o644))

	f, warns, err := Load(path)
	require.NoError(t, err)
	require.Empty(t, warns)
	assert.Equal(t, path, f.Path)
	require.Len(t, f.Specs, 1)

	_, _, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "srv.yaml")
	require.NoError(t, WriteDefault(path))

	f, warns, err := Load(path)
	require.NoError(t, err)
	require.Empty(t, warns)
	require.Len(t, f.Specs, 1)
	assert.Equal(t, "example", f.Specs[0].Name)

	require.Error(t, WriteDefault(path), "must not overwrite an existing config")
}

func TestStatePath(t *testing.T) {
	assert.Equal(t, "/etc/srv/.srv-state.json", StatePath("/etc/srv/srv.yaml"))
}

func TestWatchDeliversReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "srv.yaml")
	require.NoError(t, os.WriteFile(path, []byte("services:\n  a:\n    command: sleep 60\n"), 0o644))

	ch, cleanup, err := Watch(context.Background(), path)
	require.NoError(t, err)
	defer func() { _ = cleanup() }()

	// Editors replace by rename; simulate with a temp file swap.
	tmp := filepath.Join(dir, "srv.yaml.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("services:\n  a:\n    command: sleep 60\n  b:\n    command: sleep 60\n"), 0o644))
	require.NoError(t, os.Rename(tmp, path))

	select {
	case ev := <-ch:
		require.NoError(t, ev.Err)
		require.NotNil(t, ev.File)
		assert.Len(t, ev.File.Specs, 2)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload event")
	}
}
