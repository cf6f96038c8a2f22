package boltcluster

import (
	"fmt"
	"strconv"
	"strings"
)

// Address identifies one server endpoint: a bolt+routing:// host and
// port. Equality is case-insensitive on the host and exact on the port;
// it never performs DNS resolution, so "localhost:7687" and
// "127.0.0.1:7687" are distinct addresses even when they happen to
// resolve to the same machine.
type Address struct {
	Host string
	Port int
}

// NewAddress builds an Address from a host and port.
func NewAddress(host string, port int) Address {
	return Address{Host: host, Port: port}
}

// ParseAddress parses a "host:port" or "bolt+routing://host:port" string.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimPrefix(s, "bolt+routing://")
	s = strings.TrimPrefix(s, "bolt://")

	host, portStr, err := splitHostPort(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid port in address %q: %w", s, err)
	}
	return Address{Host: host, Port: port}, nil
}

func splitHostPort(s string) (host, port string, err error) {
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return "", "", fmt.Errorf("missing port")
	}
	return s[:idx], s[idx+1:], nil
}

// Key returns the canonical, comparison-normalized string form used as a
// map key throughout the driver - lower-cased host, exact port.
func (a Address) Key() string {
	return strings.ToLower(a.Host) + ":" + strconv.Itoa(a.Port)
}

// Equal reports whether two addresses name the same endpoint under the
// case-insensitive-host, no-DNS-resolution equality rule.
func (a Address) Equal(other Address) bool {
	return a.Key() == other.Key()
}

// String renders the address in host:port form.
func (a Address) String() string {
	return a.Host + ":" + strconv.Itoa(a.Port)
}
