package reactor

import "sync/atomic"

//Stats is a point in time copy of the reactor counters.
type Stats struct {
	Accepted uint64
	Closed   uint64
	Open     uint64
	BytesIn  uint64
	BytesOut uint64
	//Dropped counts echo bytes discarded because a send would block (WithDropUnsent only).
	Dropped uint64
}

type stats struct {
	accepted uint64
	closed   uint64
	bytesIn  uint64
	bytesOut uint64
	dropped  uint64
}

func (s *stats) snapshot() Stats {
	closed := atomic.LoadUint64(&s.closed)
	accepted := atomic.LoadUint64(&s.accepted)
	return Stats{
		Accepted: accepted,
		Closed:   closed,
		Open:     accepted - closed,
		BytesIn:  atomic.LoadUint64(&s.bytesIn),
		BytesOut: atomic.LoadUint64(&s.bytesOut),
		Dropped:  atomic.LoadUint64(&s.dropped),
	}
}
