package notify

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unitd/unitd/internal/log"
	"github.com/unitd/unitd/internal/registry"
	"github.com/unitd/unitd/internal/unitmodel"
)

func sendLine(t *testing.T, path, line string) {
	t.Helper()
	conn, err := net.DialUnix("unixgram", nil, &net.UnixAddr{Name: path, Net: "unixgram"})
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte(line))
	require.NoError(t, err)
}

func waitForStatus(t *testing.T, status *registry.StatusTable, id unitmodel.UnitID, want unitmodel.Status) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if rec, ok := status.Get(id); ok && rec.Status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("status never reached %v", want)
}

func TestListenerReadyTransitionsToStarted(t *testing.T) {
	var alloc unitmodel.IDAllocator
	id := alloc.Next()
	status := registry.NewStatusTable([]unitmodel.UnitID{id})
	status.Set(id, registry.Record{Status: unitmodel.Starting})

	sockPath := filepath.Join(t.TempDir(), "web.sock")
	l := NewListener(id, sockPath, status, log.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()
	time.Sleep(20 * time.Millisecond) // let the socket bind

	sendLine(t, sockPath, "READY=1\n")

	waitForStatus(t, status, id, unitmodel.Started)
}

func TestListenerStatusAndMainPIDAreRecorded(t *testing.T) {
	var alloc unitmodel.IDAllocator
	id := alloc.Next()
	status := registry.NewStatusTable([]unitmodel.UnitID{id})
	status.Set(id, registry.Record{Status: unitmodel.Starting})

	sockPath := filepath.Join(t.TempDir(), "web.sock")
	l := NewListener(id, sockPath, status, log.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)

	sendLine(t, sockPath, "STATUS=warming up\nMAINPID=4321\n")

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		rec, _ := status.Get(id)
		if rec.Notify == "warming up" && rec.MainPID == 4321 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("STATUS= and MAINPID= were never applied")
}

func TestListenerJoinsAssignmentSplitAcrossDatagrams(t *testing.T) {
	var alloc unitmodel.IDAllocator
	id := alloc.Next()
	status := registry.NewStatusTable([]unitmodel.UnitID{id})
	status.Set(id, registry.Record{Status: unitmodel.Starting})

	sockPath := filepath.Join(t.TempDir(), "web.sock")
	l := NewListener(id, sockPath, status, log.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)

	// a client that flushes "READY" and "=1\n" as two separate sendto()
	// calls still produces one logical line; the remainder buffer must
	// join them rather than discard the first as line noise.
	sendLine(t, sockPath, "READY")
	sendLine(t, sockPath, "=1\n")

	waitForStatus(t, status, id, unitmodel.Started)
}

func TestListenerStopsOnContextCancel(t *testing.T) {
	var alloc unitmodel.IDAllocator
	id := alloc.Next()
	status := registry.NewStatusTable([]unitmodel.UnitID{id})

	sockPath := filepath.Join(t.TempDir(), "web.sock")
	l := NewListener(id, sockPath, status, log.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
