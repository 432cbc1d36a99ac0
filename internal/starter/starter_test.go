package starter

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unitd/unitd/internal/execproto"
	"github.com/unitd/unitd/internal/fdstore"
	"github.com/unitd/unitd/internal/unitmodel"
)

type fakeForker struct {
	argv0 string
	argv  []string
	attr  *syscall.ProcAttr
	pid   int
	err   error
}

func (f *fakeForker) ForkExec(argv0 string, argv []string, attr *syscall.ProcAttr) (int, error) {
	f.argv0 = argv0
	f.argv = argv
	f.attr = attr
	return f.pid, f.err
}

func realExecutable(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-exec")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
	return path
}

func TestLaunchBuildsArgvAndReturnsPID(t *testing.T) {
	cmdPath := realExecutable(t)
	forker := &fakeForker{pid: 4242}
	s := &Starter{Forker: forker, HelperPath: "/usr/libexec/unitd-exec"}

	pid, err := s.Launch(LaunchSpec{
		Name:       "web.service",
		Conf:       &unitmodel.ServiceConfig{Cmd: cmdPath, Args: []string{"serve"}},
		Phase:      execproto.PhaseStart,
		NotifySock: "/run/unitd/notify/web.sock",
	})
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)
	assert.Equal(t, "/usr/libexec/unitd-exec", forker.argv0)
	assert.Contains(t, forker.argv, "--command")
	assert.Contains(t, forker.argv, "start")
	assert.NotContains(t, forker.argv, "--cmd_idx")
}

func TestLaunchIncludesCmdIdxForIndexedPhases(t *testing.T) {
	cmdPath := realExecutable(t)
	forker := &fakeForker{pid: 10}
	s := &Starter{Forker: forker, HelperPath: "/usr/libexec/unitd-exec"}

	_, err := s.Launch(LaunchSpec{
		Name:   "web.service",
		Conf:   &unitmodel.ServiceConfig{Cmd: cmdPath, Stop: []unitmodel.Command{{Cmd: "/bin/true"}}},
		Phase:  execproto.PhaseStop,
		CmdIdx: 0,
	})
	require.NoError(t, err)
	assert.Contains(t, forker.argv, "--cmd_idx")
	assert.Contains(t, forker.argv, "0")
}

func TestLaunchRemapsFilesContiguousFrom3(t *testing.T) {
	cmdPath := realExecutable(t)
	forker := &fakeForker{pid: 99}
	s := &Starter{Forker: forker, HelperPath: "/usr/libexec/unitd-exec"}

	_, err := s.Launch(LaunchSpec{
		Name: "web.service",
		Conf: &unitmodel.ServiceConfig{Cmd: cmdPath},
		FDs: []fdstore.Entry{
			{Name: "web.socket", FD: 17},
			{Name: "admin.socket", FD: 23},
		},
		Phase: execproto.PhaseStart,
	})
	require.NoError(t, err)
	require.Len(t, forker.attr.Files, 5)
	assert.Equal(t, []uintptr{0, 1, 2, 17, 23}, forker.attr.Files)
}

func TestLaunchSetsProcessGroup(t *testing.T) {
	cmdPath := realExecutable(t)
	forker := &fakeForker{pid: 1}
	s := &Starter{Forker: forker, HelperPath: "/usr/libexec/unitd-exec"}

	_, err := s.Launch(LaunchSpec{Name: "x", Conf: &unitmodel.ServiceConfig{Cmd: cmdPath}, Phase: execproto.PhaseStart})
	require.NoError(t, err)
	require.NotNil(t, forker.attr.Sys)
	assert.True(t, forker.attr.Sys.Setpgid)
}

func TestLaunchFailsForMissingExecutable(t *testing.T) {
	forker := &fakeForker{pid: 1}
	s := &Starter{Forker: forker, HelperPath: "/usr/libexec/unitd-exec"}

	_, err := s.Launch(LaunchSpec{
		Name:  "missing.service",
		Conf:  &unitmodel.ServiceConfig{Cmd: "/does/not/exist"},
		Phase: execproto.PhaseStart,
	})
	require.Error(t, err)
	assert.True(t, unitmodel.IsSpawnError(err))
}

func TestLaunchPropagatesForkError(t *testing.T) {
	cmdPath := realExecutable(t)
	forker := &fakeForker{err: errors.New("fork table full")}
	s := &Starter{Forker: forker, HelperPath: "/usr/libexec/unitd-exec"}

	_, err := s.Launch(LaunchSpec{Name: "x", Conf: &unitmodel.ServiceConfig{Cmd: cmdPath}, Phase: execproto.PhaseStart})
	require.Error(t, err)
	assert.True(t, unitmodel.IsSpawnError(err))
}

func TestBuildHelperEnvOmitsListenPID(t *testing.T) {
	env := buildHelperEnv(LaunchSpec{
		FDs:        []fdstore.Entry{{Name: "web.socket", FD: 5}},
		NotifySock: "/run/unitd/notify/web.sock",
		Conf:       &unitmodel.ServiceConfig{Environment: []unitmodel.EnvVar{{Name: "FOO", Value: "bar"}}},
	}, execproto.ServiceConfig{})

	names := make([]string, len(env))
	for i, e := range env {
		names[i] = e.Name
	}
	assert.Contains(t, names, "LISTEN_FDS")
	assert.Contains(t, names, "LISTEN_FDNAMES")
	assert.Contains(t, names, "NOTIFY_SOCKET")
	assert.Contains(t, names, "FOO")
	assert.NotContains(t, names, "LISTEN_PID")
}
