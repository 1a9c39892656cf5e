// Package sock creates the listening and connectionless sockets the echo
// server runs on, and wraps accepted descriptors for the blocking mode.
package sock

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

//Transport is the socket flavour a Listener is created for.
type Transport string

const (
	TCP Transport = "tcp"
	UDP Transport = "udp"
)

//DefaultBacklog is the listen(2) backlog used when no WithBacklog option is given.
const DefaultBacklog = 5

//MaxDatagramSize fits any UDP payload carried over IPv4 or IPv6 without jumbograms.
const MaxDatagramSize = 64 << 10

var (
	ErrInvalidPort      = errors.New("invalid port")
	ErrUnknownTransport = errors.New("unknown transport")
)

//ParseTransport maps a user supplied transport name (case-insensitive) to a Transport.
func ParseTransport(s string) (Transport, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(TCP):
		return TCP, nil
	case string(UDP):
		return UDP, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTransport, s)
}

func (t Transport) String() string {
	return string(t)
}

type options struct {
	host        net.IP
	backlog     int
	reuseAddr   bool
	recvTimeout time.Duration
}

type Option func(o *options)

//WithHost binds the socket to ip instead of the wildcard address.
func WithHost(ip net.IP) Option {
	return func(o *options) {
		o.host = ip
	}
}

func WithBacklog(n int) Option {
	return func(o *options) {
		o.backlog = n
	}
}

//WithReuseAddr sets SO_REUSEADDR before bind.
func WithReuseAddr() Option {
	return func(o *options) {
		o.reuseAddr = true
	}
}

//WithRecvTimeout sets SO_RCVTIMEO on the socket. Blocking accept and receive calls
//then fail with os.ErrDeadlineExceeded after d, which lets blocking loops observe cancellation.
func WithRecvTimeout(d time.Duration) Option {
	return func(o *options) {
		o.recvTimeout = d
	}
}
