package unitmodel

// Status is a unit's current lifecycle state (spec.md §3, §4.8).
type Status int

const (
	// NeverRan is the initial status of every registered unit.
	NeverRan Status = iota
	// Starting means a start has been initiated and readiness has not yet been observed.
	Starting
	// StartedWaitingForSocket means the unit's socket has been opened but its
	// main process has not yet reached readiness.
	StartedWaitingForSocket
	// Started means the unit is up: fork succeeded (simple) or READY=1 was
	// received (notify). A oneshot never reaches Started; its success is StoppedFinal(Ok).
	Started
	// Stopping means a stop has been initiated and the main process has not yet been reaped.
	Stopping
	// Stopped means the main process was reaped and restart policy has not yet been applied.
	Stopped
	// StoppedFinal means the unit will not be restarted; Reason explains why.
	StoppedFinal
)

// String renders the status for logs and the control-socket protocol.
func (s Status) String() string {
	switch s {
	case NeverRan:
		return "never-ran"
	case Starting:
		return "starting"
	case StartedWaitingForSocket:
		return "started-waiting-for-socket"
	case Started:
		return "started"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	case StoppedFinal:
		return "stopped-final"
	default:
		return "unknown"
	}
}

// FinalReason classifies why a unit reached StoppedFinal.
type FinalReason int

const (
	// ReasonNone applies to any non-final status.
	ReasonNone FinalReason = iota
	// ReasonOk is a successful oneshot completion.
	ReasonOk
	// ReasonExited is any exit from Started under RestartNo, whatever its code or signal.
	ReasonExited
	// ReasonStartFailed is a failure to reach Started (spawn error, notify timeout, oneshot failure).
	ReasonStartFailed
	// ReasonDependencyFailed means a predecessor in `after` failed, so this unit was never started.
	ReasonDependencyFailed
	// ReasonRestartLimit means the configured restart burst threshold was exceeded.
	ReasonRestartLimit
	// ReasonHookFailed means a required pre/post/stop hook command failed or timed out.
	ReasonHookFailed
	// ReasonManagerShutdown means the unit was stopped as part of manager shutdown.
	ReasonManagerShutdown
)

func (r FinalReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonOk:
		return "ok"
	case ReasonExited:
		return "exited"
	case ReasonStartFailed:
		return "start-failed"
	case ReasonDependencyFailed:
		return "dependency-failed"
	case ReasonRestartLimit:
		return "restart-limit"
	case ReasonHookFailed:
		return "hook-failed"
	case ReasonManagerShutdown:
		return "manager-shutdown"
	default:
		return "unknown"
	}
}

// ExitKind distinguishes a normal exit code from death by signal.
type ExitKind int

const (
	// ExitUnknown means the process has not yet been reaped.
	ExitUnknown ExitKind = iota
	// ExitCode means the process called exit(code) or returned from main.
	ExitCode
	// ExitSignal means the process was terminated by a signal.
	ExitSignal
)

// ExitInfo classifies how a reaped process terminated.
type ExitInfo struct {
	Kind   ExitKind
	Code   int // valid when Kind == ExitCode
	Signal int // valid when Kind == ExitSignal
}

// Success reports whether the process exited with code 0.
func (e ExitInfo) Success() bool {
	return e.Kind == ExitCode && e.Code == 0
}
