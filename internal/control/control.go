// Package control implements the control socket (spec.md §6): a unix
// stream listener accepting line-delimited commands
// (list/start/stop/restart/status/shutdown), one command per
// connection, responses terminated by a blank line.
//
// Grounded on the teacher's cmd/unit_status.go / cmd/unit_start.go
// pattern of a thin CLI command calling into a shared client — here
// the manager-side handler and the cmd/unitd subcommands are the two
// ends of that same protocol, generalized from quad-ops's in-process
// systemd.StartUnit call to an out-of-process unix socket RPC, since
// this manager's CLI and daemon are separate invocations of the same
// binary (spec.md §6 "consumer interface").
package control

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/unitd/unitd/internal/log"
	"github.com/unitd/unitd/internal/registry"
	"github.com/unitd/unitd/internal/unitmodel"
)

// Commander is the thin seam back into the Supervisor, mirroring
// reactor.Restarter: Server depends on this small interface instead of
// importing internal/supervisor, and *supervisor.Supervisor satisfies
// it structurally.
type Commander interface {
	Start(ctx context.Context, id unitmodel.UnitID) error
	Stop(ctx context.Context, id unitmodel.UnitID) error
	Restart(ctx context.Context, id unitmodel.UnitID) error
	Shutdown(ctx context.Context) error
}

// Server accepts control-socket connections and dispatches one command
// per connection against the Unit/Status Tables and the Commander.
type Server struct {
	Path      string
	Units     *registry.UnitTable
	Status    *registry.StatusTable
	Commander Commander
	Log       log.Logger
}

// New creates a Server bound to path (removed and recreated on Run,
// and removed again when Run returns — spec.md scenario 6 "control
// socket path is removed" on shutdown).
func New(path string, units *registry.UnitTable, status *registry.StatusTable, commander Commander, logger log.Logger) *Server {
	return &Server{Path: path, Units: units, Status: status, Commander: commander, Log: logger}
}

// Run listens on Path and serves connections until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	_ = os.Remove(s.Path) // a stale socket from a prior unclean exit must not block bind
	ln, err := net.Listen("unix", s.Path)
	if err != nil {
		return fmt.Errorf("control: listen %s: %w", s.Path, err)
	}
	defer os.Remove(s.Path)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		fmt.Fprintf(conn, "ERROR: empty command\n\n")
		return
	}

	var resp []string
	switch fields[0] {
	case "list":
		resp = s.doList()
	case "status":
		if len(fields) != 2 {
			resp = []string{"ERROR: usage: status <name>"}
			break
		}
		resp = s.doStatus(fields[1])
	case "start":
		resp = s.doCommand(ctx, fields, s.Commander.Start)
	case "stop":
		resp = s.doCommand(ctx, fields, s.Commander.Stop)
	case "restart":
		resp = s.doCommand(ctx, fields, s.Commander.Restart)
	case "shutdown":
		if err := s.Commander.Shutdown(ctx); err != nil {
			resp = []string{fmt.Sprintf("ERROR: %v", err)}
		} else {
			resp = []string{"OK"}
		}
	default:
		resp = []string{fmt.Sprintf("ERROR: unknown command %q", fields[0])}
	}

	for _, l := range resp {
		fmt.Fprintf(conn, "%s\n", l)
	}
	fmt.Fprint(conn, "\n")
}

func (s *Server) doCommand(ctx context.Context, fields []string, op func(context.Context, unitmodel.UnitID) error) []string {
	if len(fields) != 2 {
		return []string{fmt.Sprintf("ERROR: usage: %s <name>", fields[0])}
	}
	id, ok := s.Units.Lookup(fields[1])
	if !ok {
		return []string{fmt.Sprintf("ERROR: no such unit %q", fields[1])}
	}
	if err := op(ctx, id); err != nil {
		return []string{fmt.Sprintf("ERROR: %v", err)}
	}
	return []string{"OK"}
}

func (s *Server) doStatus(name string) []string {
	id, ok := s.Units.Lookup(name)
	if !ok {
		return []string{fmt.Sprintf("ERROR: no such unit %q", name)}
	}
	rec, _ := s.Status.Get(id)
	return []string{formatRecord(name, rec)}
}

func (s *Server) doList() []string {
	var out []string
	for _, id := range s.Units.All() {
		unit, ok := s.Units.Get(id)
		if !ok {
			continue
		}
		rec, _ := s.Status.Get(id)
		out = append(out, formatRecord(unit.Name, rec))
	}
	return out
}

func formatRecord(name string, rec registry.Record) string {
	line := fmt.Sprintf("%s\t%s\tpid=%d", name, rec.Status, rec.MainPID)
	if rec.Status == unitmodel.StoppedFinal {
		line += fmt.Sprintf("\treason=%s", rec.Reason)
	}
	if rec.Notify != "" {
		line += fmt.Sprintf("\tstatus=%s", rec.Notify)
	}
	return line
}
