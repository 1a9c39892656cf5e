//go:build linux

package sock

import (
	"io"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

//Conn is an accepted TCP peer served with blocking reads and writes.
type Conn struct {
	fd           int
	lAddr, rAddr net.Addr
}

func newConn(fd int, lAddr, rAddr net.Addr) *Conn {
	return &Conn{
		fd:    fd,
		lAddr: lAddr,
		rAddr: rAddr,
	}
}

func (c *Conn) Read(b []byte) (n int, err error) {
	n, err = unix.Read(c.fd, b)
	if err != nil {
		return 0, &net.OpError{Op: "read", Net: "tcp", Source: c.lAddr, Addr: c.rAddr, Err: wrapErrno("read", err)}
	}

	if n == 0 && len(b) > 0 {
		return 0, io.EOF
	}

	return n, nil
}

//Write blocks until all of b is written or the socket fails.
func (c *Conn) Write(b []byte) (n int, err error) {
	for n < len(b) {
		var written int
		written, err = unix.Write(c.fd, b[n:])
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return n, &net.OpError{Op: "write", Net: "tcp", Source: c.lAddr, Addr: c.rAddr, Err: wrapErrno("write", err)}
		}
		n += written
	}

	return n, nil
}

func (c *Conn) Close() error {
	if c.fd < 0 {
		return nil
	}

	err := unix.Close(c.fd)
	c.fd = -1
	if err != nil {
		err = &net.OpError{Op: "close", Net: "tcp", Source: c.lAddr, Addr: c.rAddr, Err: err}
	}
	return err
}

func (c *Conn) Fd() int {
	return c.fd
}

func (c *Conn) LocalAddr() net.Addr {
	return c.lAddr
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.rAddr
}

//SetReadTimeout bounds every subsequent Read; 0 means block forever.
func (c *Conn) SetReadTimeout(d time.Duration) error {
	return setRecvTimeout(c.fd, d)
}
