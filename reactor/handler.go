//go:build linux

package reactor

import (
	"sync/atomic"

	"github.com/godzie44/go-echo/epoll"
	"golang.org/x/sys/unix"
)

//serve handles one readiness event for an accepted connection.
func (r *Reactor) serve(ev epoll.Event) {
	c := r.conns.get(ev.Fd)
	if c == nil {
		return
	}

	if ev.Writable && c.hasPending() {
		r.flush(c)
	}

	if ev.Readable || ev.Hangup || ev.Error {
		r.receive(c)
	}
}

//receive reads until the socket would block, echoing every chunk as one unit.
//Hangup and error conditions surface here as EOF or a read error.
func (r *Reactor) receive(c *conn) {
	for c.state.serving() {
		if !r.dropUnsent && c.pendingBytes >= r.pendingLimit {
			//resumed by flush once the peer catches up
			c.readPaused = true
			return
		}

		n, err := unix.Read(c.fd, r.buff)
		switch {
		case err == nil && n > 0:
			c.state = transition(c.state, evData)
			atomic.AddUint64(&r.stats.bytesIn, uint64(n))
			_ = r.logger.Log("level", "debug", "msg", "received", "fd", c.fd, "bytes", n)
			r.echo(c, r.buff[:n])
		case err == nil && c.hasPending():
			//half-closed peer still waits for its echo; flush closes once the queue drains
			c.state = transition(c.state, evPeerClosed)
			_ = r.logger.Log("level", "debug", "msg", "peer closed, flushing pending", "fd", c.fd, "pending", c.pendingBytes)
			return
		case err == nil:
			_ = r.logger.Log("level", "info", "msg", "client disconnected", "peer", c.peerString(), "fd", c.fd)
			r.close(c, evPeerClosed)
		case isWouldBlock(err):
			c.state = transition(c.state, evWouldBlock)
			return
		case err == unix.EINTR:
		default:
			_ = r.logger.Log("level", "error", "msg", "error receiving data", "peer", c.peerString(), "fd", c.fd, "err", err)
			r.close(c, evFailed)
		}
	}
}

//echo sends b back to the peer. Whatever the socket does not take right now is queued
//and write interest is armed, unless the reactor drops unsent bytes.
func (r *Reactor) echo(c *conn, b []byte) {
	if c.hasPending() {
		c.enqueue(b)
		return
	}

	n, err := write(c.fd, b)
	if err != nil && !isWouldBlock(err) {
		_ = r.logger.Log("level", "error", "msg", "error sending data", "peer", c.peerString(), "fd", c.fd, "err", err)
		r.close(c, evFailed)
		return
	}

	atomic.AddUint64(&r.stats.bytesOut, uint64(n))
	rest := b[n:]
	if len(rest) == 0 {
		return
	}

	if r.dropUnsent {
		atomic.AddUint64(&r.stats.dropped, uint64(len(rest)))
		_ = r.logger.Log("level", "error", "msg", "partial send, dropping unsent bytes", "peer", c.peerString(), "fd", c.fd, "unsent", len(rest))
		return
	}

	c.enqueue(rest)
	if c.writeArmed {
		return
	}
	if err = r.poller.Modify(c.fd, epoll.Readable|epoll.Writable, epoll.EdgeTriggered); err != nil {
		_ = r.logger.Log("level", "error", "msg", "error arming write interest", "fd", c.fd, "err", err)
		r.close(c, evFailed)
		return
	}
	c.writeArmed = true
}

//flush writes pending bytes in order until the queue is empty or the socket would block.
func (r *Reactor) flush(c *conn) {
	for c.hasPending() {
		n, err := write(c.fd, c.front())
		if err != nil {
			if isWouldBlock(err) {
				return
			}
			_ = r.logger.Log("level", "error", "msg", "error sending data", "peer", c.peerString(), "fd", c.fd, "err", err)
			r.close(c, evFailed)
			return
		}

		atomic.AddUint64(&r.stats.bytesOut, uint64(n))
		c.consume(n)
	}

	if c.state == StateClosing {
		_ = r.logger.Log("level", "info", "msg", "client disconnected", "peer", c.peerString(), "fd", c.fd)
		r.close(c, evPeerClosed)
		return
	}

	if err := r.poller.Modify(c.fd, epoll.Readable, epoll.EdgeTriggered); err != nil {
		_ = r.logger.Log("level", "error", "msg", "error disarming write interest", "fd", c.fd, "err", err)
		r.close(c, evFailed)
		return
	}
	c.writeArmed = false

	if c.readPaused {
		c.readPaused = false
		r.receive(c)
	}
}

//close deregisters, closes and forgets c. The order keeps the poller and the table in lockstep
//and never leaves a closed descriptor registered.
func (r *Reactor) close(c *conn, ev ioEvent) {
	c.state = transition(c.state, ev)

	if err := r.poller.Remove(c.fd); err != nil {
		_ = r.logger.Log("level", "error", "msg", "error removing socket from epoll", "fd", c.fd, "err", err)
	}
	if err := unix.Close(c.fd); err != nil {
		_ = r.logger.Log("level", "error", "msg", "error closing socket", "fd", c.fd, "err", err)
	}
	r.conns.remove(c.fd)

	if c.pendingBytes > 0 {
		atomic.AddUint64(&r.stats.dropped, uint64(c.pendingBytes))
		_ = r.logger.Log("level", "error", "msg", "closing with unsent bytes", "peer", c.peerString(), "fd", c.fd, "unsent", c.pendingBytes)
	}
	c.release()
	c.state = transition(c.state, evReleased)
	atomic.AddUint64(&r.stats.closed, 1)
}

//write is a non-blocking send that retries only on EINTR. A reset peer yields EPIPE, not SIGPIPE.
func write(fd int, b []byte) (int, error) {
	for {
		n, err := unix.SendmsgN(fd, b, nil, nil, unix.MSG_NOSIGNAL)
		if err == unix.EINTR {
			continue
		}
		if n < 0 {
			n = 0
		}
		return n, err
	}
}
