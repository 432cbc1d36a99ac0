package execproto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unitd/unitd/internal/unitmodel"
)

func TestEncodeDecodeConfRoundTrips(t *testing.T) {
	c := ServiceConfig{
		Cmd:      "/usr/bin/echo-fd-3",
		Args:     []string{"hello"},
		Prefixes: []string{"-"},
		StartPre: []Command{{Cmd: "/bin/true"}},
		Sockets:  []string{"web.socket"},
		ExecConfig: ExecConfig{
			User:   "nobody",
			Stdout: Redirect{Kind: "file", Path: "/tmp/out.log"},
		},
	}

	encoded, err := EncodeConf(c)
	require.NoError(t, err)

	decoded, err := DecodeConf(encoded)
	require.NoError(t, err)
	assert.Equal(t, c, decoded)
}

func TestEncodeDecodeEnvRoundTrips(t *testing.T) {
	vars := []EnvVar{{Name: "FOO", Value: "bar"}}
	encoded, err := EncodeEnv(vars)
	require.NoError(t, err)

	decoded, err := DecodeEnv(encoded)
	require.NoError(t, err)
	assert.Equal(t, vars, decoded)
}

func TestFromServiceConfigConvertsAllFields(t *testing.T) {
	src := &unitmodel.ServiceConfig{
		Cmd:      "/bin/server",
		Args:     []string{"--port", "8080"},
		PreStart: []unitmodel.Command{{Cmd: "/bin/migrate"}},
		Sockets:  []string{"web.socket"},
		Exec: unitmodel.ExecConfig{
			User:   "app",
			Stdout: unitmodel.Redirect{Kind: unitmodel.RedirectAppendFile, Path: "/var/log/app.log"},
		},
	}

	wire := FromServiceConfig(src)
	assert.Equal(t, "/bin/server", wire.Cmd)
	assert.Equal(t, []string{"--port", "8080"}, wire.Args)
	assert.Equal(t, "/bin/migrate", wire.StartPre[0].Cmd)
	assert.Equal(t, "append-file", wire.ExecConfig.Stdout.Kind)
	assert.Equal(t, "/var/log/app.log", wire.ExecConfig.Stdout.Path)
}

func TestCommandForResolvesEachPhase(t *testing.T) {
	conf := ServiceConfig{
		StartPre:  []Command{{Cmd: "pre-first"}, {Cmd: "pre-second"}},
		StartPost: []Command{{Cmd: "post-first"}, {Cmd: "post-second"}},
		Stop:      []Command{{Cmd: "stop-first"}, {Cmd: "stop-second"}},
		StopPost:  []Command{{Cmd: "stoppost-first"}, {Cmd: "stoppost-second"}},
	}
	want := map[Phase]string{
		PhaseStartPre:  "pre-second",
		PhaseStartPost: "post-second",
		PhaseStop:      "stop-second",
		PhaseStopPost:  "stoppost-second",
	}
	for phase, name := range want {
		cmd, ok := Request{Command: phase, CmdIdx: 1, Conf: conf}.CommandFor()
		require.True(t, ok, phase)
		assert.Equal(t, name, cmd.Cmd, phase)
	}
}

func TestCommandForStartUsesPrefixesAndArgs(t *testing.T) {
	req := Request{
		Command: PhaseStart,
		Conf: ServiceConfig{
			Cmd:      "/bin/exec",
			Args:     []string{"a"},
			Prefixes: []string{"env", "FOO=bar"},
		},
	}
	cmd, ok := req.CommandFor()
	require.True(t, ok)
	assert.Equal(t, "/bin/exec", cmd.Cmd)
	assert.Equal(t, []string{"env", "FOO=bar", "a"}, cmd.Args)
}

func TestCommandForOutOfRangeIndexFails(t *testing.T) {
	req := Request{
		Command: PhaseStop,
		CmdIdx:  5,
		Conf:    ServiceConfig{Stop: []Command{{Cmd: "only"}}},
	}
	_, ok := req.CommandFor()
	assert.False(t, ok)
}
