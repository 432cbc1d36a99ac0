package unitmodel

// SocketKind is the transport kind of one listening endpoint.
type SocketKind int

const (
	// SocketStream is a connection-oriented listener (unix or tcp).
	SocketStream SocketKind = iota
	// SocketDatagram is a connectionless endpoint (unix or udp).
	SocketDatagram
	// SocketSeqpacket is a connection-oriented, message-boundary-preserving unix socket.
	SocketSeqpacket
	// SocketFIFO is a named pipe created with mkfifo.
	SocketFIFO
)

func (k SocketKind) String() string {
	switch k {
	case SocketStream:
		return "stream"
	case SocketDatagram:
		return "datagram"
	case SocketSeqpacket:
		return "seqpacket"
	case SocketFIFO:
		return "fifo"
	default:
		return "unknown"
	}
}

// BindFamily selects the address family a SocketConfig binds in.
type BindFamily int

const (
	// BindUnix binds a unix-domain path (or, if Path starts with '@', an abstract-namespace name).
	BindUnix BindFamily = iota
	// BindTCP binds a TCP host:port address.
	BindTCP
	// BindUDP binds a UDP host:port address.
	BindUDP
	// BindFIFOPath creates a named pipe at Path.
	BindFIFOPath
)

// BindSpec is the concrete address a socket unit binds.
type BindSpec struct {
	Family BindFamily
	Path   string // unix path ("@name" for abstract) or fifo path
	Addr   string // host:port for tcp/udp
}

// SocketConfig is the immutable, parsed configuration for a socket unit.
type SocketConfig struct {
	Kind  SocketKind
	Bind  BindSpec
	// OwningServices lists the service unit names that declare this
	// socket in their Sockets list, in no particular order. The loader
	// does not fill it and the Socket Unit Manager does not read it:
	// Manager.Close closes a socket whether or not a service still uses it.
	OwningServices []string
}
