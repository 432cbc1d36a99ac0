package unitmodel

import "fmt"

// ErrorKind classifies a unit-level failure (spec.md §7).
type ErrorKind int

const (
	// KindConfigError covers invalid/missing config fields and dependency cycles.
	KindConfigError ErrorKind = iota
	// KindSpawnError covers a missing/non-file executable or a failed fork/exec.
	KindSpawnError
	// KindHookFailed covers a non-zero or timed-out pre/post/stop command.
	KindHookFailed
	// KindNotificationTimeout covers a notify service that never sent READY=1 in time.
	KindNotificationTimeout
	// KindSocketOpenError covers a failed bind/listen.
	KindSocketOpenError
	// KindReapError covers a waitpid failure other than ECHILD.
	KindReapError
	// KindShutdownError covers best-effort shutdown failures.
	KindShutdownError
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfigError:
		return "ConfigError"
	case KindSpawnError:
		return "SpawnError"
	case KindHookFailed:
		return "HookFailed"
	case KindNotificationTimeout:
		return "NotificationTimeout"
	case KindSocketOpenError:
		return "SocketOpenError"
	case KindReapError:
		return "ReapError"
	case KindShutdownError:
		return "ShutdownError"
	default:
		return "UnknownError"
	}
}

// Error is a unit-scoped error carrying enough context to log and to
// classify programmatically via the Is*Error predicates below, mirroring
// the kind/name/cause shape used throughout the supervision core.
type Error struct {
	Kind     ErrorKind
	UnitName string
	Cause    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: unit %q: %v", e.Kind, e.UnitName, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError constructs a unit-scoped error of the given kind.
func NewError(kind ErrorKind, unitName string, cause error) *Error {
	return &Error{Kind: kind, UnitName: unitName, Cause: cause}
}

func isKind(err error, kind ErrorKind) bool {
	var e *Error
	for err != nil {
		if ue, ok := err.(*Error); ok {
			e = ue
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool { return isKind(err, KindConfigError) }

// IsSpawnError reports whether err is (or wraps) a SpawnError.
func IsSpawnError(err error) bool { return isKind(err, KindSpawnError) }

// IsHookFailed reports whether err is (or wraps) a HookFailed error.
func IsHookFailed(err error) bool { return isKind(err, KindHookFailed) }

// IsNotificationTimeout reports whether err is (or wraps) a NotificationTimeout error.
func IsNotificationTimeout(err error) bool { return isKind(err, KindNotificationTimeout) }

// IsSocketOpenError reports whether err is (or wraps) a SocketOpenError.
func IsSocketOpenError(err error) bool { return isKind(err, KindSocketOpenError) }

// IsReapError reports whether err is (or wraps) a ReapError.
func IsReapError(err error) bool { return isKind(err, KindReapError) }

// IsShutdownError reports whether err is (or wraps) a ShutdownError.
func IsShutdownError(err error) bool { return isKind(err, KindShutdownError) }
