// Package notify implements the Notification Listener (spec.md §4.10,
// component C10): one `net.ListenUnixgram` datagram socket per
// notify-type service, parsing the sd_notify wire protocol and driving
// the unit's Status Table record from Starting to Started on READY=1.
//
// Grounded on the teacher's client-side use of
// github.com/coreos/go-systemd/v22/daemon in cmd/daemon.go
// (daemon.SdNotify) — this package is the other end of that same wire
// format, so it imports daemon's string constants directly rather than
// redeclaring "READY=1" etc. as local literals. Buffering of a trailing
// partial datagram follows rustysd's notification_handler.rs, which
// keeps a per-connection byte remainder rather than assuming each
// recvfrom call delivers a whole line.
package notify

import (
	"bytes"
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/unitd/unitd/internal/log"
	"github.com/unitd/unitd/internal/registry"
	"github.com/unitd/unitd/internal/unitmodel"
)

// Listener owns one notify-type service's datagram socket and updates
// the Status Table as sd_notify messages arrive.
type Listener struct {
	UnitID unitmodel.UnitID
	Path   string

	Status *registry.StatusTable
	Log    log.Logger

	mu        sync.Mutex
	remainder []byte
}

// NewListener creates a Listener for id's notify socket at path. The
// socket itself is not opened until Run is called.
func NewListener(id unitmodel.UnitID, path string, status *registry.StatusTable, logger log.Logger) *Listener {
	return &Listener{UnitID: id, Path: path, Status: status, Log: logger}
}

// Run binds the unix datagram socket and reads sd_notify messages until
// ctx is done or the socket errors. Exactly one Listener exists per
// notify-type service for the lifetime of that service's run (spec.md
// §9 "one accepted connection per notify service").
func (l *Listener) Run(ctx context.Context) error {
	addr, err := net.ResolveUnixAddr("unixgram", l.Path)
	if err != nil {
		return err
	}
	conn, err := net.ListenUnixgram("unixgram", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		l.handleDatagram(buf[:n])
	}
}

// handleDatagram appends the datagram to any buffered remainder, splits
// on newlines (sd_notify messages are newline-delimited KEY=VALUE
// pairs, one assignment per line within a single datagram), and applies
// every complete line. A trailing partial line is held for the next
// read, matching ServiceRuntime.notifications_buffer (spec.md §3).
func (l *Listener) handleDatagram(data []byte) {
	l.mu.Lock()
	buf := append(l.remainder, data...)
	l.remainder = nil
	l.mu.Unlock()

	for {
		idx := bytes.IndexByte(buf, '\n')
		if idx < 0 {
			break
		}
		line := buf[:idx]
		buf = buf[idx+1:]
		l.applyLine(string(line))
	}
	if len(buf) > 0 {
		l.mu.Lock()
		l.remainder = append([]byte(nil), buf...)
		l.mu.Unlock()
	}
}

func (l *Listener) applyLine(line string) {
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return
	}
	assignment := key + "=" + value

	switch {
	case assignment == daemon.SdNotifyReady:
		l.Status.Update(l.UnitID, func(r registry.Record) registry.Record {
			r.Status = unitmodel.Started
			r.UpdatedAt = time.Now()
			return r
		})
	case assignment == daemon.SdNotifyStopping:
		l.Status.Update(l.UnitID, func(r registry.Record) registry.Record {
			r.Status = unitmodel.Stopping
			r.UpdatedAt = time.Now()
			return r
		})
	case assignment == daemon.SdNotifyWatchdog:
		l.Log.Debug("watchdog keepalive received", "unit", l.UnitID.String())
	case key == "STATUS":
		l.Status.Update(l.UnitID, func(r registry.Record) registry.Record {
			r.Notify = value
			r.UpdatedAt = time.Now()
			return r
		})
	case key == "MAINPID":
		pid, err := strconv.Atoi(value)
		if err != nil {
			return
		}
		l.Status.Update(l.UnitID, func(r registry.Record) registry.Record {
			r.MainPID = pid
			r.UpdatedAt = time.Now()
			return r
		})
	}
}
