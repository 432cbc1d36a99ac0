package unitmodel

// Kind distinguishes the three unit variants the core understands.
type Kind int

const (
	// KindService is a unit that supervises a long-running or oneshot child process.
	KindService Kind = iota
	// KindSocket is a unit that owns one or more listening endpoints handed to services at start.
	KindSocket
	// KindTarget is a grouping unit with no process of its own.
	KindTarget
)

// String renders the kind for logs and the control-socket protocol.
func (k Kind) String() string {
	switch k {
	case KindService:
		return "service"
	case KindSocket:
		return "socket"
	case KindTarget:
		return "target"
	default:
		return "unknown"
	}
}

// CommonConfig holds the fields shared by every unit variant, already
// resolved from names to ids by the caller that builds the Unit Table
// (the unit-file parser is an external collaborator; it hands us
// already-validated records referencing units by name, and registration
// resolves those names to UnitIDs once, here).
type CommonConfig struct {
	Description string
	Wants       []UnitID
	Requires    []UnitID
	Before      []UnitID
	After       []UnitID
}

// Install carries the wanted_by/required_by reverse-dependency hints.
// The loader does not fill it or add any dependency edge for these
// hints, and nothing reads it at runtime.
type Install struct {
	WantedBy  []UnitID
	RequiredBy []UnitID
}

// Unit is one immutable, registered unit: identity, kind, common
// dependency config, and the kind-specific config. Exactly one of
// Service/Socket/Target is non-nil, matching Kind.
type Unit struct {
	ID     UnitID
	Name   string
	Kind   Kind
	Common CommonConfig
	Install Install

	Service *ServiceConfig
	Socket  *SocketConfig
	Target  *TargetConfig
}

// TargetConfig is deliberately empty: a target unit has no executable
// fields, only the dependency edges carried in CommonConfig.
type TargetConfig struct{}
