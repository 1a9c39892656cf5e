//go:build linux

package reactor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/godzie44/go-echo/epoll"
	"github.com/godzie44/go-echo/sock"
	"golang.org/x/sys/unix"
)

const (
	//DefaultBufferSize is the capacity of the shared receive scratch buffer.
	DefaultBufferSize = 1024
	//DefaultPendingLimit is the number of unsent bytes per connection after which reading pauses.
	DefaultPendingLimit = 1 << 20
)

var ErrNotStream = errors.New("reactor: listener is not a stream socket")

//Reactor is a single goroutine event loop echoing every TCP connection accepted on its listener.
//Client descriptors are non-blocking and edge-triggered, the listener is level-triggered.
type Reactor struct {
	listener *sock.Listener
	poller   *epoll.Poller
	conns    *connTable

	buff   []byte
	events []epoll.Event

	logger       Logger
	maxEvents    int
	bufferSize   int
	pendingLimit int
	dropUnsent   bool

	stats  stats
	closed bool
}

type Option func(r *Reactor)

func WithLogger(l Logger) Option {
	return func(r *Reactor) {
		r.logger = l
	}
}

//WithMaxEvents bounds the number of ready descriptors handled per wait call.
func WithMaxEvents(n int) Option {
	return func(r *Reactor) {
		r.maxEvents = n
	}
}

//WithBufferSize sets the scratch buffer capacity, the upper bound of one receive.
func WithBufferSize(n int) Option {
	return func(r *Reactor) {
		r.bufferSize = n
	}
}

//WithPendingLimit sets how many unsent bytes a connection may accumulate before its reads pause.
func WithPendingLimit(n int) Option {
	return func(r *Reactor) {
		r.pendingLimit = n
	}
}

//WithDropUnsent discards whatever a non-blocking send could not write instead of
//queueing it for the next writable event. The loss is logged and counted.
func WithDropUnsent() Option {
	return func(r *Reactor) {
		r.dropUnsent = true
	}
}

//New takes ownership of l, switches it to non-blocking mode and registers it with a new poller.
//On error l is left to the caller.
func New(l *sock.Listener, opts ...Option) (*Reactor, error) {
	if l.Transport() != sock.TCP {
		return nil, ErrNotStream
	}

	r := &Reactor{
		listener:     l,
		logger:       &nopLogger{},
		maxEvents:    epoll.DefaultMaxEvents,
		bufferSize:   DefaultBufferSize,
		pendingLimit: DefaultPendingLimit,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.maxEvents <= 0 || r.bufferSize <= 0 || r.pendingLimit <= 0 {
		return nil, fmt.Errorf("reactor: max events, buffer size and pending limit must be positive")
	}

	if err := l.SetNonblock(true); err != nil {
		return nil, err
	}

	poller, err := epoll.New(r.maxEvents)
	if err != nil {
		return nil, err
	}

	if err = poller.Add(l.Fd(), epoll.Readable, epoll.LevelTriggered); err != nil {
		_ = poller.Close()
		return nil, err
	}

	r.poller = poller
	r.conns = newConnTable(defaultTableCapacity)
	r.buff = make([]byte, r.bufferSize)
	r.events = make([]epoll.Event, r.maxEvents)

	return r, nil
}

//Run serves connections until ctx is done or the poller fails.
//Everything the reactor owns is closed when Run returns; a nil error means ctx ended the loop.
func (r *Reactor) Run(ctx context.Context) error {
	stop := make(chan struct{})
	waker := make(chan struct{})
	defer func() {
		close(stop)
		<-waker
		_ = r.Close()
	}()

	go func() {
		defer close(waker)
		select {
		case <-ctx.Done():
			if err := r.poller.Wake(); err != nil {
				_ = r.logger.Log("level", "error", "msg", "wake poller", "err", err)
			}
		case <-stop:
		}
	}()

	for ctx.Err() == nil {
		if err := r.poll(-1); err != nil {
			return err
		}
	}

	return nil
}

//poll runs one iteration: a single wait call, then every reported event in order.
func (r *Reactor) poll(timeout time.Duration) error {
	n, err := r.poller.Wait(r.events, timeout)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil
		}
		return err
	}

	for _, ev := range r.events[:n] {
		if ev.Fd == r.listener.Fd() {
			r.acceptAll()
			continue
		}
		r.serve(ev)
	}

	return nil
}

//acceptAll drains the accept queue. One readiness report may stand for many pending peers.
func (r *Reactor) acceptAll() {
	for {
		fd, sa, err := unix.Accept4(r.listener.Fd(), unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if isWouldBlock(err) {
				return
			}

			_ = r.logger.Log("level", "error", "msg", "error accepting connection", "err", err)
			if isTransientAccept(err) {
				continue
			}
			//the listener is level-triggered, the next wait reports it again
			return
		}

		r.register(fd, sock.PeerAddr(sock.TCP, sa))
	}
}

func (r *Reactor) register(fd int, peer net.Addr) {
	c := newConn(fd, peer)

	if !r.conns.add(c) {
		_ = r.logger.Log("level", "error", "msg", "descriptor already tracked", "fd", fd)
		_ = unix.Close(fd)
		return
	}

	if err := r.poller.Add(fd, epoll.Readable, epoll.EdgeTriggered); err != nil {
		_ = r.logger.Log("level", "error", "msg", "error adding client socket to epoll", "fd", fd, "err", err)
		r.conns.remove(fd)
		_ = unix.Close(fd)
		return
	}

	atomic.AddUint64(&r.stats.accepted, 1)
	_ = r.logger.Log("level", "info", "msg", "connection from", "peer", c.peerString(), "fd", fd)
}

//Stats returns a snapshot of the counters. Safe to call from any goroutine.
func (r *Reactor) Stats() Stats {
	return r.stats.snapshot()
}

//Addr is the address the listener is bound to.
func (r *Reactor) Addr() net.Addr {
	return r.listener.Addr()
}

//Close releases all connections, the poller and the listener. It is called by Run on return
//and only needs to be called directly for a reactor that never ran.
func (r *Reactor) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	r.conns.each(func(c *conn) {
		r.close(c, evFailed)
	})

	err := r.poller.Close()
	if lErr := r.listener.Close(); err == nil {
		err = lErr
	}
	return err
}

func isWouldBlock(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}

func isTransientAccept(err error) bool {
	switch err {
	case unix.EINTR, unix.ECONNABORTED, unix.EPROTO, unix.EPERM:
		return true
	}
	return false
}
