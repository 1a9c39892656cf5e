//go:build linux

package sock

import (
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"time"

	sockaddrnet "github.com/libp2p/go-sockaddr/net"
	"golang.org/x/sys/unix"
)

//Listener owns a bound socket. For TCP it is in listening state, for UDP it is only bound.
type Listener struct {
	fd        int
	transport Transport
	addr      net.Addr
}

//Listen creates a socket for transport, binds it to port and, for TCP, starts listening.
//Port 0 binds an ephemeral port, Addr reports the one chosen by the kernel.
func Listen(transport Transport, port int, opts ...Option) (*Listener, error) {
	if port < 0 || port > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}

	o := options{host: net.IPv4zero, backlog: DefaultBacklog}
	for _, opt := range opts {
		opt(&o)
	}

	var bindAddr net.Addr
	switch transport {
	case TCP:
		bindAddr = &net.TCPAddr{IP: o.host, Port: port}
	case UDP:
		bindAddr = &net.UDPAddr{IP: o.host, Port: port}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, transport)
	}

	family := sockaddrnet.NetAddrAF(bindAddr)
	sa := sockaddrnet.NetAddrToSockaddr(bindAddr)
	if family == unix.AF_UNSPEC || sa == nil {
		return nil, fmt.Errorf("sock: unsupported bind address %s", bindAddr)
	}

	fd, err := unix.Socket(family, sockaddrnet.NetAddrSOCK(bindAddr)|unix.SOCK_CLOEXEC, sockaddrnet.NetAddrIPPROTO(bindAddr))
	if err != nil {
		return nil, os.NewSyscallError("socket", err)
	}

	l := &Listener{fd: fd, transport: transport}
	if err = l.setup(sa, o); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("sock: %s %s: %w", transport, bindAddr, err)
	}

	return l, nil
}

func (l *Listener) setup(sa unix.Sockaddr, o options) error {
	if o.reuseAddr {
		if err := unix.SetsockoptInt(l.fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			return os.NewSyscallError("setsockopt", err)
		}
	}

	if o.recvTimeout > 0 {
		if err := setRecvTimeout(l.fd, o.recvTimeout); err != nil {
			return err
		}
	}

	if err := unix.Bind(l.fd, sa); err != nil {
		return os.NewSyscallError("bind", err)
	}

	if l.transport == TCP {
		if err := unix.Listen(l.fd, o.backlog); err != nil {
			return os.NewSyscallError("listen", err)
		}
	}

	local, err := unix.Getsockname(l.fd)
	if err != nil {
		return os.NewSyscallError("getsockname", err)
	}
	l.addr = sockaddrToAddr(l.transport, local)

	return nil
}

func (l *Listener) Fd() int {
	return l.fd
}

func (l *Listener) Addr() net.Addr {
	return l.addr
}

func (l *Listener) Transport() Transport {
	return l.transport
}

//SetNonblock switches the descriptor between blocking and non-blocking mode.
func (l *Listener) SetNonblock(nonblocking bool) error {
	return os.NewSyscallError("setnonblock", unix.SetNonblock(l.fd, nonblocking))
}

//Accept blocks until a peer connects and returns it as a blocking Conn.
//Only valid for TCP listeners.
func (l *Listener) Accept() (*Conn, error) {
	fd, sa, err := unix.Accept4(l.fd, unix.SOCK_CLOEXEC)
	if err != nil {
		return nil, &net.OpError{Op: "accept", Net: string(l.transport), Addr: l.addr, Err: wrapErrno("accept4", err)}
	}

	return newConn(fd, l.addr, sockaddrToAddr(TCP, sa)), nil
}

//ReadFrom receives one datagram. Only valid for UDP listeners.
func (l *Listener) ReadFrom(b []byte) (int, net.Addr, error) {
	n, _, from, err := l.ReadDatagram(b)
	return n, from, err
}

//ReadDatagram is ReadFrom that also reports the datagram's size on the wire.
//size > n means the tail did not fit into b and was discarded by the kernel.
func (l *Listener) ReadDatagram(b []byte) (n, size int, from net.Addr, err error) {
	size, sa, err := unix.Recvfrom(l.fd, b, unix.MSG_TRUNC)
	if err != nil {
		return 0, 0, nil, &net.OpError{Op: "read", Net: string(l.transport), Source: l.addr, Err: wrapErrno("recvfrom", err)}
	}

	n = size
	if n > len(b) {
		n = len(b)
	}
	return n, size, sockaddrToAddr(UDP, sa), nil
}

//WriteTo sends b as one datagram to addr. Only valid for UDP listeners.
func (l *Listener) WriteTo(b []byte, addr net.Addr) (int, error) {
	sa := sockaddrnet.NetAddrToSockaddr(addr)
	if sa == nil {
		return 0, &net.OpError{Op: "write", Net: string(l.transport), Source: l.addr, Addr: addr, Err: unix.EAFNOSUPPORT}
	}

	if err := unix.Sendto(l.fd, b, 0, sa); err != nil {
		return 0, &net.OpError{Op: "write", Net: string(l.transport), Source: l.addr, Addr: addr, Err: wrapErrno("sendto", err)}
	}

	return len(b), nil
}

func (l *Listener) Close() error {
	if l.fd < 0 {
		return nil
	}

	err := unix.Close(l.fd)
	l.fd = -1
	if err != nil {
		return &net.OpError{Op: "close", Net: string(l.transport), Addr: l.addr, Err: err}
	}
	return nil
}

//PeerAddr converts a raw peer address returned by accept/recvfrom into a net.Addr.
func PeerAddr(transport Transport, sa unix.Sockaddr) net.Addr {
	return sockaddrToAddr(transport, sa)
}

func sockaddrToAddr(transport Transport, sa unix.Sockaddr) net.Addr {
	switch transport {
	case TCP:
		if addr := sockaddrnet.SockaddrToTCPAddr(sa); addr != nil {
			return addr
		}
	case UDP:
		if addr := sockaddrnet.SockaddrToUDPAddr(sa); addr != nil {
			return addr
		}
	}
	return nil
}

func setRecvTimeout(fd int, d time.Duration) error {
	tv := unix.NsecToTimeval(d.Nanoseconds())
	return os.NewSyscallError("setsockopt", unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv))
}

//wrapErrno maps the SO_RCVTIMEO expiry onto os.ErrDeadlineExceeded, the rest stays a syscall error.
func wrapErrno(op string, err error) error {
	if errors.Is(err, unix.EAGAIN) {
		return fmt.Errorf("%w: %s", os.ErrDeadlineExceeded, os.NewSyscallError(op, err).Error())
	}
	return os.NewSyscallError(op, err)
}
