package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeRoot(t *testing.T) {
	t.Helper()
	orig := getuid
	getuid = func() int { return 0 }
	t.Cleanup(func() { getuid = orig })
}

func fakeUser(t *testing.T) {
	t.Helper()
	orig := getuid
	getuid = func() int { return 1000 }
	t.Cleanup(func() { getuid = orig })
}

func TestUserModeReflectsUID(t *testing.T) {
	fakeUser(t)
	assert.True(t, UserMode())

	fakeRoot(t)
	assert.False(t, UserMode())
}

func TestNewProviderAppliesRootDefaults(t *testing.T) {
	fakeRoot(t)
	p, err := NewProvider("")
	require.NoError(t, err)

	s, err := p.Settings()
	require.NoError(t, err)
	assert.Equal(t, "/etc/unitd/units", s.UnitDir)
	assert.Equal(t, "/run/unitd", s.RuntimeDir)
	assert.Equal(t, filepath.Join("/run/unitd", "notify"), s.NotifySocketDir())
	assert.Equal(t, filepath.Join("/run/unitd", "control.socket"), s.ControlSocketPath())
}

func TestNewProviderLoadsConfigFile(t *testing.T) {
	fakeRoot(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "unitd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("unit_dir: /custom/units\nstart_workers: 4\n"), 0o644))

	p, err := NewProvider(path)
	require.NoError(t, err)

	s, err := p.Settings()
	require.NoError(t, err)
	assert.Equal(t, "/custom/units", s.UnitDir)
	assert.Equal(t, 4, s.StartWorkers)
	assert.Equal(t, path, p.ConfigFileUsed())
}

func TestSetOverrideWinsOverConfigFile(t *testing.T) {
	fakeRoot(t)
	path := filepath.Join(t.TempDir(), "unitd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("unit_dir: /file/units\n"), 0o644))

	p, err := NewProvider(path)
	require.NoError(t, err)

	p.SetOverride("unit_dir", "/flag/units")

	s, err := p.Settings()
	require.NoError(t, err)
	assert.Equal(t, "/flag/units", s.UnitDir)
}

func TestWorkersFallsBackToNumCPU(t *testing.T) {
	s := Settings{StartWorkers: 0}
	assert.Greater(t, s.Workers(), 0)

	s.StartWorkers = 7
	assert.Equal(t, 7, s.Workers())
}
