// Package netutil answers the network questions fixtures and tests ask:
// which local port is free and whether a remote port accepts connections.
package netutil

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// FindAvailablePort asks the kernel for a free TCP port on the loopback
// interface. The port is released before returning, so another process
// may take it in between.
func FindAvailablePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("finding available port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// LocalPort is a TCP port on this host.
type LocalPort struct {
	Number int
}

// Port returns the local port n.
func Port(n int) LocalPort {
	return LocalPort{Number: n}
}

// IsAvailable reports whether the port can be bound.
func (p LocalPort) IsAvailable() bool {
	if p.Number < 0 || p.Number > 65535 {
		return false
	}
	l, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(p.Number)))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}

func (p LocalPort) String() string {
	return "localhost:" + strconv.Itoa(p.Number)
}

// Remote is a TCP port on another (or this) host.
type Remote struct {
	Host   string
	Number int
}

// RemotePort returns port n on host.
func RemotePort(host string, n int) Remote {
	return Remote{Host: host, Number: n}
}

// IsReachable reports whether a TCP connection can be established within
// timeout.
func (r Remote) IsReachable(timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", r.String(), timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func (r Remote) String() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Number))
}
