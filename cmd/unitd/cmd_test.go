package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/unitd/unitd/internal/config"
	"github.com/unitd/unitd/internal/control"
	"github.com/unitd/unitd/internal/log"
	"github.com/unitd/unitd/internal/registry"
	"github.com/unitd/unitd/internal/unitmodel"
)

// fakeCommander lets subcommand tests exercise the real control
// protocol without a real Supervisor, the same role the teacher's
// mocks_test.go fakes play for App-level dependencies.
type fakeCommander struct {
	startCalls chan unitmodel.UnitID
}

func (f *fakeCommander) Start(ctx context.Context, id unitmodel.UnitID) error {
	if f.startCalls != nil {
		f.startCalls <- id
	}
	return nil
}
func (f *fakeCommander) Stop(ctx context.Context, id unitmodel.UnitID) error    { return nil }
func (f *fakeCommander) Restart(ctx context.Context, id unitmodel.UnitID) error { return nil }
func (f *fakeCommander) Shutdown(ctx context.Context) error                    { return nil }

// withTestApp wires a real control.Server around a fakeCommander,
// registers one "web.service" unit, and returns a cobra context carrying
// an App pointed at that server's socket — so command RunE funcs that
// call appFromContext(cmd).Control() exercise the real client/server
// wire protocol end to end.
func withTestApp(t *testing.T) (context.Context, *fakeCommander) {
	t.Helper()

	units := registry.NewUnitTable()
	var alloc unitmodel.IDAllocator
	id := alloc.Next()
	require.NoError(t, units.Insert(&unitmodel.Unit{ID: id, Name: "web.service", Kind: unitmodel.KindService}))

	status := registry.NewStatusTable([]unitmodel.UnitID{id})
	status.Set(id, registry.Record{Status: unitmodel.Started, MainPID: 99})

	commander := &fakeCommander{startCalls: make(chan unitmodel.UnitID, 1)}
	sockPath := filepath.Join(t.TempDir(), "control.socket")
	srv := control.New(sockPath, units, status, commander, log.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = srv.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)

	app := &App{
		Logger: log.Nop(),
		Config: config.Settings{RuntimeDir: filepath.Dir(sockPath)},
	}
	// ControlSocketPath() joins RuntimeDir with "control.socket"; point
	// RuntimeDir directly at sockPath's directory so it resolves back
	// to the same path the test server is listening on.
	require.Equal(t, sockPath, app.Config.ControlSocketPath())

	return context.WithValue(ctx, appContextKey, app), commander
}

func runCommand(t *testing.T, ctx context.Context, cmd *cobra.Command, args ...string) error {
	t.Helper()
	cmd.SetContext(ctx)
	cmd.SetArgs(args)
	return cmd.Execute()
}
