package gossipmesh

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Address is the stable identity of a node on the mesh: the host and port its
// listener is reachable on. It is distinct from the remote endpoint of any
// particular connection, which is ephemeral.
type Address struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (a Address) String() string {
	return a.Host + ":" + strconv.Itoa(a.Port)
}

// ParseAddress parses "host:port". The port is everything after the last
// colon, so hosts containing colons still parse.
func ParseAddress(s string) (Address, error) {
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		return Address{}, fmt.Errorf("address %q: missing port", s)
	}
	host := s[:i]
	if host == "" {
		return Address{}, fmt.Errorf("address %q: empty host", s)
	}
	port, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return Address{}, fmt.Errorf("address %q: bad port: %v", s, err)
	}
	if port < 1 || port > 65535 {
		return Address{}, fmt.Errorf("address %q: port %d out of range", s, port)
	}
	return Address{Host: host, Port: port}, nil
}

// ParseAddresses parses a sep-separated list of addresses, skipping empty
// elements. Any element that fails to parse fails the whole list.
func ParseAddresses(s, sep string) ([]Address, error) {
	parts := strings.Split(s, sep)
	addrs := make([]Address, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		addr, err := ParseAddress(part)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

// SortAddresses sorts addresses by host, then port.
func SortAddresses(addrs []Address) {
	sort.Slice(addrs, func(i, j int) bool {
		if addrs[i].Host != addrs[j].Host {
			return addrs[i].Host < addrs[j].Host
		}
		return addrs[i].Port < addrs[j].Port
	})
}

// Runnable is a long running function intended to be launched in a goroutine.
type Runnable func(context.Context)

// Runner exposes a Runnable through an interface
type Runner interface {
	Run(context.Context)
}

func MaybeAppendRunnable(runnables []Runnable, maybeRunner interface{}) []Runnable {
	if r, ok := maybeRunner.(Runner); ok {
		runnables = append(runnables, r.Run)
	}
	return runnables
}
