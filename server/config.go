package server

import (
	"errors"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/godzie44/go-echo/epoll"
	"github.com/godzie44/go-echo/reactor"
	"github.com/godzie44/go-echo/sock"
)

const DefaultPort = 8080

var ErrInvalidConfig = errors.New("invalid config")

//Config is everything the server needs to start. It is produced by the command line layer.
type Config struct {
	Transport sock.Transport
	Host      net.IP
	Port      int
	//Multiplexed serves TCP through the epoll reactor instead of one connection at a time.
	Multiplexed bool
	Backlog     int
	ReuseAddr   bool

	BufferSize   int
	//DatagramSize is the UDP receive buffer. Longer datagrams are echoed truncated.
	DatagramSize int
	MaxEvents    int
	PendingLimit int
	DropUnsent   bool

	//TickInterval bounds how long the blocking and UDP loops sleep in a syscall
	//before they look at their context again.
	TickInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Transport:    sock.TCP,
		Host:         net.IPv4zero,
		Port:         DefaultPort,
		Backlog:      sock.DefaultBacklog,
		BufferSize:   reactor.DefaultBufferSize,
		DatagramSize: sock.MaxDatagramSize,
		MaxEvents:    epoll.DefaultMaxEvents,
		PendingLimit: reactor.DefaultPendingLimit,
		TickInterval: 500 * time.Millisecond,
	}
}

//Validate reports the first invalid field. Nothing is created before it passes.
func (c Config) Validate() error {
	switch c.Transport {
	case sock.TCP, sock.UDP:
	default:
		return fmt.Errorf("%w: transport %q, use tcp or udp", ErrInvalidConfig, c.Transport)
	}

	if c.Port < 1 || c.Port > math.MaxUint16 {
		return fmt.Errorf("%w: port %d out of range 1-%d", ErrInvalidConfig, c.Port, math.MaxUint16)
	}

	if c.Backlog < 1 || c.BufferSize < 1 || c.DatagramSize < 1 || c.MaxEvents < 1 || c.PendingLimit < 1 {
		return fmt.Errorf("%w: backlog, buffer sizes, max events and pending limit must be positive", ErrInvalidConfig)
	}

	if c.TickInterval <= 0 {
		return fmt.Errorf("%w: tick interval must be positive", ErrInvalidConfig)
	}

	return nil
}

func (c Config) mode() string {
	switch {
	case c.Transport == sock.UDP:
		return "udp"
	case c.Multiplexed:
		return "epoll"
	}
	return "blocking"
}
