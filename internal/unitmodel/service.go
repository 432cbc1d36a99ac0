package unitmodel

import "time"

// ServiceType controls how the Service Starter decides a service has
// become ready (spec.md §4.6 parent post-fork).
type ServiceType int

const (
	// TypeSimple considers the service Started as soon as fork succeeds.
	TypeSimple ServiceType = iota
	// TypeNotify waits for a READY=1 datagram on the notification socket.
	TypeNotify
	// TypeDBus is started like TypeSimple: Started as soon as fork succeeds; no bus name ownership is watched.
	TypeDBus
	// TypeOneshot does not reach Started; it runs to completion and becomes StoppedFinal(Ok) on success.
	TypeOneshot
)

func (t ServiceType) String() string {
	switch t {
	case TypeSimple:
		return "simple"
	case TypeNotify:
		return "notify"
	case TypeDBus:
		return "dbus"
	case TypeOneshot:
		return "oneshot"
	default:
		return "unknown"
	}
}

// RestartPolicy controls what the Signal Reactor does when a Started
// service's main process exits.
type RestartPolicy int

const (
	// RestartNo leaves the unit StoppedFinal(Exited) after any exit from Started, whatever its code or signal.
	RestartNo RestartPolicy = iota
	// RestartAlways re-enqueues a start every time the main process exits from Started.
	RestartAlways
)

func (p RestartPolicy) String() string {
	if p == RestartAlways {
		return "always"
	}
	return "no"
}

// NotifyAccess is a service's parsed notify-access setting, naming which
// pids its notification datagrams may come from. internal/notify does
// not consult it: a Listener applies every datagram that reaches its
// socket, whatever the sender.
type NotifyAccess int

const (
	// NotifyAccessMain names the service's main pid as the only sender.
	NotifyAccessMain NotifyAccess = iota
	// NotifyAccessExec names the currently-running hook/exec pid as the only sender.
	NotifyAccessExec
	// NotifyAccessAll names any pid tagged to the unit in the PID Table.
	NotifyAccessAll
	// NotifyAccessNone names no sender.
	NotifyAccessNone
)

// RedirectKind selects where a child's stdout/stderr is connected.
type RedirectKind int

const (
	// RedirectNone leaves the stream as the child inherits it from the manager; it is not redirected to /dev/null.
	RedirectNone RedirectKind = iota
	// RedirectFile truncates and writes to Path.
	RedirectFile
	// RedirectAppendFile appends to Path, creating it if necessary.
	RedirectAppendFile
)

// Redirect describes one stdout/stderr target.
type Redirect struct {
	Kind RedirectKind
	Path string
}

// Command is one entry in a pre-start/post-start/stop/post-stop sequence.
type Command struct {
	Cmd  string
	Args []string
}

// ExecConfig holds the identity and stream redirection that
// cmd/unitd-exec applies to itself before it execs the target
// commandline (spec.md §4.6 child post-fork steps 2-4).
type ExecConfig struct {
	User              string
	Group             string
	SupplementaryGroups []string
	Stdout            Redirect
	Stderr            Redirect
}

// ServiceConfig is the immutable, parsed configuration for a service unit.
type ServiceConfig struct {
	Cmd      string
	Args     []string
	Prefixes []string

	PreStart  []Command
	PostStart []Command
	Stop      []Command
	PostStop  []Command

	Type          ServiceType
	Restart       RestartPolicy
	RestartBurstLimit int // 0 means unlimited
	NotifyAccess  NotifyAccess

	StartTimeout time.Duration
	StopTimeout  time.Duration
	GeneralTimeout time.Duration

	Exec    ExecConfig
	Sockets []string // logical socket unit names this service depends on, in declared order

	Environment []EnvVar
}

// EnvVar is one user-provided environment variable; user overrides take
// precedence over the four injected LISTEN_*/NOTIFY_SOCKET variables for
// everything except those four names (spec.md §6 "Child environment").
type EnvVar struct {
	Name  string
	Value string
}

// ServiceRuntime is a mutable runtime slot for a service unit. No
// package uses it: the runtime state the Supervisor tracks lives in the
// Status Table's registry.Record.
type ServiceRuntime struct {
	MainPID   int  // 0 if not running
	PGID      int  // process-group id, negated when used as a kill target
	Status    Status
	ExitInfo  ExitInfo
	RestartCount int
	UpSince   time.Time

	NotifySocketPath string

	StdoutFD int // duplicated fd held open by the manager for the lifetime of the child
	StderrFD int

	NotifyBuffer []byte // buffered trailing partial notification line
}
