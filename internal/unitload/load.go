// Package unitload is the unit.Loader SPEC_FULL.md §1 names: it reads
// YAML unit-definition files from a directory and registers them into
// the Unit Table and Dependency Graph. Text parsing of the unit-file
// format itself is explicitly out of scope for the supervision core
// (spec.md §1 "the unit-file parser [is] consumed as already-validated
// configuration records"), but cmd/unitd needs a real implementation of
// that external collaborator to be a runnable daemon, so this package
// supplies one.
//
// Grounded directly on the teacher's internal/quadlet processor.go /
// types.go pair: one YAML-tagged DTO struct per unit kind, a
// filepath.Walk over *.yaml files, and yaml.NewDecoder per file reading
// possibly-multiple `---`-separated documents — generalized from
// quadlet's container/volume/network/pod/kube/image/build variants to
// this spec's service/socket/target variants. gopkg.in/yaml.v3 is the
// same decoder the teacher uses in internal/quadlet/processor.go.
package unitload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/unitd/unitd/internal/depgraph"
	"github.com/unitd/unitd/internal/registry"
	"github.com/unitd/unitd/internal/unitmodel"
)

type commandFile struct {
	Cmd  string   `yaml:"cmd"`
	Args []string `yaml:"args"`
}

type redirectFile struct {
	Kind string `yaml:"kind"` // "", "file", "append-file"
	Path string `yaml:"path"`
}

type execFile struct {
	User                string        `yaml:"user"`
	Group               string        `yaml:"group"`
	SupplementaryGroups []string      `yaml:"supplementary_groups"`
	Stdout              redirectFile  `yaml:"stdout"`
	Stderr              redirectFile  `yaml:"stderr"`
}

type serviceFile struct {
	Cmd      string   `yaml:"cmd"`
	Args     []string `yaml:"args"`
	Prefixes []string `yaml:"prefixes"`

	PreStart  []commandFile `yaml:"pre_start"`
	PostStart []commandFile `yaml:"post_start"`
	Stop      []commandFile `yaml:"stop"`
	PostStop  []commandFile `yaml:"post_stop"`

	Type              string `yaml:"type"` // simple, notify, dbus, oneshot
	Restart           string `yaml:"restart"` // always, no
	RestartBurstLimit int    `yaml:"restart_burst_limit"`
	NotifyAccess      string `yaml:"notify_access"` // main, exec, all, none

	StartTimeout   string `yaml:"start_timeout"`
	StopTimeout    string `yaml:"stop_timeout"`
	GeneralTimeout string `yaml:"general_timeout"`

	Exec    execFile `yaml:"exec"`
	Sockets []string `yaml:"sockets"`

	Environment map[string]string `yaml:"environment"`
}

type bindFile struct {
	Family string `yaml:"family"` // unix, tcp, udp, fifo
	Path   string `yaml:"path"`
	Addr   string `yaml:"addr"`
}

type socketFile struct {
	Kind string   `yaml:"kind"` // stream, datagram, seqpacket, fifo
	Bind bindFile `yaml:"bind"`
}

// unitFile is the on-disk shape of one unit definition, mirroring
// quadlet.QuadletUnit's "common fields + one kind-specific block" shape.
type unitFile struct {
	Name        string   `yaml:"name"`
	Type        string   `yaml:"type"` // service, socket, target
	Description string   `yaml:"description"`
	Wants       []string `yaml:"wants"`
	Requires    []string `yaml:"requires"`
	Before      []string `yaml:"before"`
	After       []string `yaml:"after"`
	WantedBy    []string `yaml:"wanted_by"`
	RequiredBy  []string `yaml:"required_by"`

	Service *serviceFile `yaml:"service,omitempty"`
	Socket  *socketFile  `yaml:"socket,omitempty"`

	sourceFile string
}

// Loader reads unit files from one directory tree and registers
// them. A Loader is single-use: call LoadDir once per Unit Table.
type Loader struct {
	alloc unitmodel.IDAllocator
}

// New creates a Loader.
func New() *Loader { return &Loader{} }

// LoadDir walks dir for *.yaml files, parses every unit definition, and
// registers each into units and deps. It returns every id registered,
// in registration order, for building the Status Table.
func (l *Loader) LoadDir(dir string, units *registry.UnitTable, deps *depgraph.Graph) ([]unitmodel.UnitID, error) {
	files, err := findYAMLFiles(dir)
	if err != nil {
		return nil, err
	}

	var parsed []unitFile
	for _, f := range files {
		us, err := parseUnitFile(f)
		if err != nil {
			return nil, unitmodel.NewError(unitmodel.KindConfigError, f, err)
		}
		parsed = append(parsed, us...)
	}

	byName := make(map[string]unitmodel.UnitID, len(parsed))
	for _, uf := range parsed {
		if _, dup := byName[uf.Name]; dup {
			return nil, unitmodel.NewError(unitmodel.KindConfigError, uf.Name, fmt.Errorf("duplicate unit name"))
		}
		byName[uf.Name] = l.alloc.Next()
	}

	resolve := func(names []string) ([]unitmodel.UnitID, error) {
		out := make([]unitmodel.UnitID, 0, len(names))
		for _, n := range names {
			id, ok := byName[n]
			if !ok {
				return nil, fmt.Errorf("references unknown unit %q", n)
			}
			out = append(out, id)
		}
		return out, nil
	}

	var ids []unitmodel.UnitID
	for _, uf := range parsed {
		id := byName[uf.Name]
		unit, err := buildUnit(id, uf, resolve)
		if err != nil {
			return nil, unitmodel.NewError(unitmodel.KindConfigError, uf.Name, err)
		}
		if err := units.Insert(unit); err != nil {
			return nil, unitmodel.NewError(unitmodel.KindConfigError, uf.Name, err)
		}
		ids = append(ids, id)

		for _, depID := range unit.Common.After {
			if err := deps.AddAfter(id, depID); err != nil {
				return nil, unitmodel.NewError(unitmodel.KindConfigError, uf.Name, err)
			}
		}
		for _, beforeName := range uf.Before {
			beforeID, ok := byName[beforeName]
			if !ok {
				return nil, unitmodel.NewError(unitmodel.KindConfigError, uf.Name, fmt.Errorf("before references unknown unit %q", beforeName))
			}
			if err := deps.AddAfter(beforeID, id); err != nil {
				return nil, unitmodel.NewError(unitmodel.KindConfigError, uf.Name, err)
			}
		}
	}

	return ids, nil
}

func buildUnit(id unitmodel.UnitID, uf unitFile, resolve func([]string) ([]unitmodel.UnitID, error)) (*unitmodel.Unit, error) {
	wants, err := resolve(uf.Wants)
	if err != nil {
		return nil, err
	}
	requires, err := resolve(uf.Requires)
	if err != nil {
		return nil, err
	}
	before, err := resolve(uf.Before)
	if err != nil {
		return nil, err
	}
	// "after" ordering is driven by both the explicit after list and
	// requires, matching the common systemd convention that Requires
	// implies ordering unless overridden — this spec names only After
	// as the scheduling input (spec.md §4.4), so requires is folded in
	// here rather than taught to the Dependency Graph as a second edge kind.
	afterNames := append(append([]string{}, uf.After...), uf.Requires...)
	after, err := resolve(afterNames)
	if err != nil {
		return nil, err
	}

	unit := &unitmodel.Unit{
		ID:   id,
		Name: uf.Name,
		Common: unitmodel.CommonConfig{
			Description: uf.Description,
			Wants:       wants,
			Requires:    requires,
			Before:      before,
			After:       after,
		},
	}

	switch uf.Type {
	case "service":
		unit.Kind = unitmodel.KindService
		if uf.Service == nil {
			return nil, fmt.Errorf("service unit missing service: block")
		}
		svc, err := buildService(*uf.Service)
		if err != nil {
			return nil, err
		}
		unit.Service = svc
	case "socket":
		unit.Kind = unitmodel.KindSocket
		if uf.Socket == nil {
			return nil, fmt.Errorf("socket unit missing socket: block")
		}
		sock, err := buildSocket(*uf.Socket)
		if err != nil {
			return nil, err
		}
		unit.Socket = sock
	case "target":
		unit.Kind = unitmodel.KindTarget
		unit.Target = &unitmodel.TargetConfig{}
	default:
		return nil, fmt.Errorf("unknown unit type %q", uf.Type)
	}

	return unit, nil
}

func buildService(sf serviceFile) (*unitmodel.ServiceConfig, error) {
	typ, err := parseServiceType(sf.Type)
	if err != nil {
		return nil, err
	}
	restart, err := parseRestartPolicy(sf.Restart)
	if err != nil {
		return nil, err
	}
	access, err := parseNotifyAccess(sf.NotifyAccess)
	if err != nil {
		return nil, err
	}
	startTimeout, err := parseDuration(sf.StartTimeout)
	if err != nil {
		return nil, err
	}
	stopTimeout, err := parseDuration(sf.StopTimeout)
	if err != nil {
		return nil, err
	}
	generalTimeout, err := parseDuration(sf.GeneralTimeout)
	if err != nil {
		return nil, err
	}
	stdout, err := buildRedirect(sf.Exec.Stdout)
	if err != nil {
		return nil, err
	}
	stderr, err := buildRedirect(sf.Exec.Stderr)
	if err != nil {
		return nil, err
	}

	env := make([]unitmodel.EnvVar, 0, len(sf.Environment))
	for k, v := range sf.Environment {
		env = append(env, unitmodel.EnvVar{Name: k, Value: v})
	}

	return &unitmodel.ServiceConfig{
		Cmd:               sf.Cmd,
		Args:              sf.Args,
		Prefixes:          sf.Prefixes,
		PreStart:          buildCommands(sf.PreStart),
		PostStart:         buildCommands(sf.PostStart),
		Stop:              buildCommands(sf.Stop),
		PostStop:          buildCommands(sf.PostStop),
		Type:              typ,
		Restart:           restart,
		RestartBurstLimit: sf.RestartBurstLimit,
		NotifyAccess:      access,
		StartTimeout:      startTimeout,
		StopTimeout:       stopTimeout,
		GeneralTimeout:    generalTimeout,
		Exec: unitmodel.ExecConfig{
			User:                sf.Exec.User,
			Group:               sf.Exec.Group,
			SupplementaryGroups: sf.Exec.SupplementaryGroups,
			Stdout:              stdout,
			Stderr:              stderr,
		},
		Sockets:     sf.Sockets,
		Environment: env,
	}, nil
}

func buildCommands(cfs []commandFile) []unitmodel.Command {
	out := make([]unitmodel.Command, 0, len(cfs))
	for _, c := range cfs {
		out = append(out, unitmodel.Command{Cmd: c.Cmd, Args: c.Args})
	}
	return out
}

func buildRedirect(rf redirectFile) (unitmodel.Redirect, error) {
	switch rf.Kind {
	case "", "none":
		return unitmodel.Redirect{Kind: unitmodel.RedirectNone}, nil
	case "file":
		return unitmodel.Redirect{Kind: unitmodel.RedirectFile, Path: rf.Path}, nil
	case "append-file":
		return unitmodel.Redirect{Kind: unitmodel.RedirectAppendFile, Path: rf.Path}, nil
	default:
		return unitmodel.Redirect{}, fmt.Errorf("unknown redirect kind %q", rf.Kind)
	}
}

func buildSocket(sf socketFile) (*unitmodel.SocketConfig, error) {
	kind, err := parseSocketKind(sf.Kind)
	if err != nil {
		return nil, err
	}
	family, err := parseBindFamily(sf.Bind.Family)
	if err != nil {
		return nil, err
	}
	return &unitmodel.SocketConfig{
		Kind: kind,
		Bind: unitmodel.BindSpec{Family: family, Path: sf.Bind.Path, Addr: sf.Bind.Addr},
	}, nil
}

func parseServiceType(s string) (unitmodel.ServiceType, error) {
	switch s {
	case "", "simple":
		return unitmodel.TypeSimple, nil
	case "notify":
		return unitmodel.TypeNotify, nil
	case "dbus":
		return unitmodel.TypeDBus, nil
	case "oneshot":
		return unitmodel.TypeOneshot, nil
	default:
		return 0, fmt.Errorf("unknown service type %q", s)
	}
}

func parseRestartPolicy(s string) (unitmodel.RestartPolicy, error) {
	switch s {
	case "", "no":
		return unitmodel.RestartNo, nil
	case "always":
		return unitmodel.RestartAlways, nil
	default:
		return 0, fmt.Errorf("unknown restart policy %q", s)
	}
}

func parseNotifyAccess(s string) (unitmodel.NotifyAccess, error) {
	switch s {
	case "", "main":
		return unitmodel.NotifyAccessMain, nil
	case "exec":
		return unitmodel.NotifyAccessExec, nil
	case "all":
		return unitmodel.NotifyAccessAll, nil
	case "none":
		return unitmodel.NotifyAccessNone, nil
	default:
		return 0, fmt.Errorf("unknown notify access %q", s)
	}
}

func parseSocketKind(s string) (unitmodel.SocketKind, error) {
	switch s {
	case "stream":
		return unitmodel.SocketStream, nil
	case "datagram":
		return unitmodel.SocketDatagram, nil
	case "seqpacket":
		return unitmodel.SocketSeqpacket, nil
	case "fifo":
		return unitmodel.SocketFIFO, nil
	default:
		return 0, fmt.Errorf("unknown socket kind %q", s)
	}
}

func parseBindFamily(s string) (unitmodel.BindFamily, error) {
	switch s {
	case "unix":
		return unitmodel.BindUnix, nil
	case "tcp":
		return unitmodel.BindTCP, nil
	case "udp":
		return unitmodel.BindUDP, nil
	case "fifo":
		return unitmodel.BindFIFOPath, nil
	default:
		return 0, fmt.Errorf("unknown bind family %q", s)
	}
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func findYAMLFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && (filepath.Ext(path) == ".yaml" || filepath.Ext(path) == ".yml") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unitload: walking %s: %w", dir, err)
	}
	return files, nil
}

func parseUnitFile(path string) ([]unitFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var out []unitFile
	decoder := yaml.NewDecoder(f)
	for {
		var uf unitFile
		if err := decoder.Decode(&uf); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("parsing YAML in %s: %w", path, err)
		}
		uf.sourceFile = path
		out = append(out, uf)
	}
	return out, nil
}
