package socketunit

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// parseInetAddr resolves a "host:port" string to a unix.Sockaddr for
// IPv4, the only address family spec.md's tcp/udp bind kinds require.
func parseInetAddr(hostport string) (unix.Sockaddr, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return nil, fmt.Errorf("parse addr %q: %w", hostport, err)
	}

	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return nil, fmt.Errorf("parse port %q: %w", portStr, err)
	}

	sa := &unix.SockaddrInet4{Port: port}
	if host == "" {
		sa.Addr = [4]byte{0, 0, 0, 0}
		return sa, nil
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupIP(host)
		if err != nil || len(ips) == 0 {
			return nil, fmt.Errorf("resolve host %q: %w", host, err)
		}
		ip = ips[0]
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("address %q is not IPv4", host)
	}
	copy(sa.Addr[:], ip4)
	return sa, nil
}
