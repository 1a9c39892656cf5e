//go:build linux

//Package server wires configuration, the socket factory and one of the three serving loops together.
package server

import (
	"context"
	"net"

	"github.com/godzie44/go-echo/reactor"
	"github.com/godzie44/go-echo/sock"
)

//Server owns a bound socket and serves it in the mode chosen by its Config.
type Server struct {
	cfg      Config
	logger   reactor.Logger
	listener *sock.Listener
}

//New validates cfg and binds the socket. Any error here is a fatal startup error.
func New(cfg Config, logger reactor.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return start(cfg, logger)
}

func start(cfg Config, logger reactor.Logger) (*Server, error) {
	opts := []sock.Option{
		sock.WithHost(cfg.Host),
		sock.WithBacklog(cfg.Backlog),
	}
	if cfg.ReuseAddr {
		opts = append(opts, sock.WithReuseAddr())
	}
	if !cfg.Multiplexed || cfg.Transport == sock.UDP {
		opts = append(opts, sock.WithRecvTimeout(cfg.TickInterval))
	}

	l, err := sock.Listen(cfg.Transport, cfg.Port, opts...)
	if err != nil {
		return nil, err
	}

	return &Server{cfg: cfg, logger: logger, listener: l}, nil
}

func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

//Run serves until ctx is done. The socket is closed when Run returns.
func (s *Server) Run(ctx context.Context) error {
	_ = s.logger.Log("level", "info", "msg", "echo server started",
		"addr", s.listener.Addr().String(), "transport", s.cfg.Transport.String(), "mode", s.cfg.mode())

	switch s.cfg.mode() {
	case "udp":
		return s.serveUDP(ctx)
	case "epoll":
		return s.serveMultiplexed(ctx)
	}
	return s.serveBlocking(ctx)
}

func (s *Server) serveMultiplexed(ctx context.Context) error {
	opts := []reactor.Option{
		reactor.WithLogger(s.logger),
		reactor.WithMaxEvents(s.cfg.MaxEvents),
		reactor.WithBufferSize(s.cfg.BufferSize),
		reactor.WithPendingLimit(s.cfg.PendingLimit),
	}
	if s.cfg.DropUnsent {
		opts = append(opts, reactor.WithDropUnsent())
	}

	r, err := reactor.New(s.listener, opts...)
	if err != nil {
		_ = s.listener.Close()
		return err
	}

	return r.Run(ctx)
}

//Run is New followed by Server.Run.
func Run(ctx context.Context, cfg Config, logger reactor.Logger) error {
	s, err := New(cfg, logger)
	if err != nil {
		return err
	}
	return s.Run(ctx)
}
