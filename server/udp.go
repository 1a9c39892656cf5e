//go:build linux

package server

import "context"

//serveUDP echoes every datagram back to its sender. Receive errors never stop the loop.
func (s *Server) serveUDP(ctx context.Context) error {
	defer s.listener.Close()

	buff := make([]byte, s.cfg.DatagramSize)
	for ctx.Err() == nil {
		n, size, from, err := s.listener.ReadDatagram(buff)
		if err != nil {
			if !isTick(err) {
				_ = s.logger.Log("level", "error", "msg", "error receiving data", "err", err)
			}
			continue
		}
		if size > n {
			_ = s.logger.Log("level", "error", "msg", "datagram truncated", "peer", from.String(), "size", size, "kept", n)
		}

		_ = s.logger.Log("level", "debug", "msg", "received", "peer", from.String(), "data", string(buff[:n]))

		if _, err = s.listener.WriteTo(buff[:n], from); err != nil {
			_ = s.logger.Log("level", "error", "msg", "error sending data", "peer", from.String(), "err", err)
		}
	}

	return nil
}
