//go:build linux

package server

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/godzie44/go-echo/reactor"
	"github.com/godzie44/go-echo/sock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sys/unix"
)

var loopback = net.IPv4(127, 0, 0, 1)

func testConfig(transport sock.Transport, multiplexed bool) Config {
	cfg := DefaultConfig()
	cfg.Transport = transport
	cfg.Host = loopback
	cfg.Port = 0
	cfg.Multiplexed = multiplexed
	cfg.Backlog = 16
	cfg.TickInterval = 20 * time.Millisecond
	return cfg
}

//runServer starts a server on an ephemeral port and stops it when the test ends.
func runServer(t *testing.T, cfg Config) net.Addr {
	return startServer(t, cfg, NewZapLogger(zaptest.NewLogger(t))).Addr()
}

func startServer(t *testing.T, cfg Config, logger reactor.Logger) *Server {
	s, err := start(cfg, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})

	return s
}

func dial(t *testing.T, addr net.Addr) net.Conn {
	c, err := net.Dial(addr.Network(), addr.String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func exchange(t *testing.T, c net.Conn, msg string) {
	_, err := c.Write([]byte(msg))
	require.NoError(t, err)

	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	buff := make([]byte, len(msg))
	_, err = io.ReadFull(c, buff)
	require.NoError(t, err)
	assert.Equal(t, msg, string(buff))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Port = 0

	_, err := New(cfg, NewZapLogger(zaptest.NewLogger(t)))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	err = Run(context.Background(), cfg, NewZapLogger(zaptest.NewLogger(t)))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewFailsWhenAddressInUse(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	cfg := testConfig(sock.TCP, true)
	cfg.Port = busy.Addr().(*net.TCPAddr).Port

	_, err = New(cfg, NewZapLogger(zaptest.NewLogger(t)))
	assert.ErrorIs(t, err, unix.EADDRINUSE)
}

func TestMultiplexedEndToEnd(t *testing.T) {
	addr := runServer(t, testConfig(sock.TCP, true))

	a, b := dial(t, addr), dial(t, addr)
	exchange(t, a, "hello\n")
	exchange(t, b, "ping")

	require.NoError(t, a.Close())
	exchange(t, b, "pong")
}

func TestBlockingEcho(t *testing.T) {
	addr := runServer(t, testConfig(sock.TCP, false))

	a := dial(t, addr)
	exchange(t, a, "hello\n")
	exchange(t, a, "again")
	require.NoError(t, a.Close())

	b := dial(t, addr)
	exchange(t, b, "next client")
}

func TestBlockingServesOneClientAtATime(t *testing.T) {
	addr := runServer(t, testConfig(sock.TCP, false))

	a := dial(t, addr)
	exchange(t, a, "first")

	b := dial(t, addr)
	_, err := b.Write([]byte("second"))
	require.NoError(t, err)

	require.NoError(t, b.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, err = b.Read(make([]byte, 16))
	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout(), "b must wait while a is connected")

	require.NoError(t, a.Close())

	require.NoError(t, b.SetReadDeadline(time.Now().Add(5*time.Second)))
	buff := make([]byte, len("second"))
	_, err = io.ReadFull(b, buff)
	require.NoError(t, err)
	assert.Equal(t, "second", string(buff))
}

func TestBlockingAcceptErrorsBackOff(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	cfg := testConfig(sock.TCP, false)
	cfg.TickInterval = 50 * time.Millisecond
	s := startServer(t, cfg, NewZapLogger(zap.New(core)))

	//accept on a shut down listening socket fails with EINVAL every time
	require.NoError(t, unix.Shutdown(s.listener.Fd(), unix.SHUT_RDWR))
	time.Sleep(300 * time.Millisecond)

	failures := logs.FilterMessage("error accepting connection").Len()
	assert.GreaterOrEqual(t, failures, 1)
	assert.LessOrEqual(t, failures, 10, "accept errors must not be retried in a tight loop")
}

func TestUDPEcho(t *testing.T) {
	addr := runServer(t, testConfig(sock.UDP, false))

	clients := []net.Conn{dial(t, addr), dial(t, addr)}
	for i, c := range clients {
		msg := []string{"datagram one", "datagram two"}[i]
		_, err := c.Write([]byte(msg))
		require.NoError(t, err)

		require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
		buff := make([]byte, 64)
		n, err := c.Read(buff)
		require.NoError(t, err)
		assert.Equal(t, msg, string(buff[:n]))
	}
}

func TestUDPSurvivesReceiveErrors(t *testing.T) {
	addr := runServer(t, testConfig(sock.UDP, false))

	//the reply to a client that is already gone must not stop the loop
	gone := dial(t, addr)
	_, err := gone.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, gone.Close())

	time.Sleep(50 * time.Millisecond)

	c := dial(t, addr)
	_, err = c.Write([]byte("still here"))
	require.NoError(t, err)

	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	buff := make([]byte, 64)
	n, err := c.Read(buff)
	require.NoError(t, err)
	assert.Equal(t, "still here", string(buff[:n]))
}

func TestUDPEchoesLargeDatagramWhole(t *testing.T) {
	addr := runServer(t, testConfig(sock.UDP, false))
	c := dial(t, addr)

	msg := bytes.Repeat([]byte("0123456789"), 200)
	_, err := c.Write(msg)
	require.NoError(t, err)

	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	buff := make([]byte, 4096)
	n, err := c.Read(buff)
	require.NoError(t, err)
	assert.Equal(t, len(msg), n)
	assert.Equal(t, msg, buff[:n])
}

func TestUDPLogsTruncatedDatagram(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	cfg := testConfig(sock.UDP, false)
	cfg.DatagramSize = 16
	s := startServer(t, cfg, NewZapLogger(zap.New(core)))
	c := dial(t, s.Addr())

	_, err := c.Write([]byte("0123456789abcdefghijklmnopqrst"))
	require.NoError(t, err)

	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	buff := make([]byte, 64)
	n, err := c.Read(buff)
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef", string(buff[:n]))

	truncated := logs.FilterMessage("datagram truncated").AllUntimed()
	require.Len(t, truncated, 1)
	assert.Equal(t, int64(30), truncated[0].ContextMap()["size"])
	assert.Equal(t, int64(16), truncated[0].ContextMap()["kept"])
}
