package reactor

import (
	"net"

	"github.com/eapache/queue"
)

//conn is the per-connection state owned by the connection table.
//The receive buffer is not part of it: all connections share the reactor's scratch buffer.
type conn struct {
	fd    int
	peer  net.Addr
	state State

	//unsent echo bytes in FIFO order, each element is a []byte
	pending      *queue.Queue
	pendingHead  int
	pendingBytes int

	writeArmed bool
	readPaused bool
}

func newConn(fd int, peer net.Addr) *conn {
	return &conn{
		fd:    fd,
		peer:  peer,
		state: StateOpen,
	}
}

func (c *conn) peerString() string {
	if c.peer == nil {
		return "unknown"
	}
	return c.peer.String()
}

func (c *conn) hasPending() bool {
	return c.pendingBytes > 0
}

//enqueue stores a copy of b behind any bytes already waiting to be sent.
func (c *conn) enqueue(b []byte) {
	if len(b) == 0 {
		return
	}
	if c.pending == nil {
		c.pending = queue.New()
	}

	chunk := make([]byte, len(b))
	copy(chunk, b)
	c.pending.Add(chunk)
	c.pendingBytes += len(chunk)
}

//front returns the unsent part of the oldest pending chunk.
func (c *conn) front() []byte {
	return c.pending.Peek().([]byte)[c.pendingHead:]
}

//consume marks n bytes of the front chunk as sent.
func (c *conn) consume(n int) {
	c.pendingBytes -= n
	if c.pendingHead+n < len(c.pending.Peek().([]byte)) {
		c.pendingHead += n
		return
	}
	c.pending.Remove()
	c.pendingHead = 0
}

func (c *conn) release() {
	c.pending = nil
	c.pendingHead = 0
	c.pendingBytes = 0
}
