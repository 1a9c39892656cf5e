//go:build linux

package server

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/godzie44/go-echo/sock"
	"golang.org/x/sys/unix"
)

//serveBlocking accepts one connection and echoes it until the peer leaves,
//then accepts the next one. A second client waits in the backlog meanwhile.
func (s *Server) serveBlocking(ctx context.Context) error {
	defer s.listener.Close()

	buff := make([]byte, s.cfg.BufferSize)
	for ctx.Err() == nil {
		conn, err := s.listener.Accept()
		if err != nil {
			if !isTick(err) {
				_ = s.logger.Log("level", "error", "msg", "error accepting connection", "err", err)
				//EMFILE and friends persist until something else changes
				backoff(ctx, s.cfg.TickInterval)
			}
			continue
		}

		_ = s.logger.Log("level", "info", "msg", "connection from", "peer", conn.RemoteAddr().String(), "fd", conn.Fd())
		s.echoConn(ctx, conn, buff)
	}

	return nil
}

func (s *Server) echoConn(ctx context.Context, conn *sock.Conn, buff []byte) {
	defer conn.Close()

	if err := conn.SetReadTimeout(s.cfg.TickInterval); err != nil {
		_ = s.logger.Log("level", "error", "msg", "error setting read timeout", "err", err)
		return
	}

	for {
		n, err := conn.Read(buff)
		if err != nil {
			switch {
			case isTick(err):
				if ctx.Err() != nil {
					return
				}
				continue
			case err == io.EOF:
				_ = s.logger.Log("level", "info", "msg", "client disconnected", "peer", conn.RemoteAddr().String())
			default:
				_ = s.logger.Log("level", "error", "msg", "error receiving data", "peer", conn.RemoteAddr().String(), "err", err)
			}
			return
		}

		_ = s.logger.Log("level", "debug", "msg", "received", "peer", conn.RemoteAddr().String(), "data", string(buff[:n]))

		if _, err = conn.Write(buff[:n]); err != nil {
			_ = s.logger.Log("level", "error", "msg", "error sending data", "peer", conn.RemoteAddr().String(), "err", err)
			return
		}
	}
}

func backoff(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

//isTick reports a receive timeout or an interrupted call, both just mean "look at ctx and retry".
func isTick(err error) bool {
	return errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, unix.EINTR)
}
