package reactor

//State is the lifecycle stage of an accepted connection.
type State uint8

const (
	//StateOpen is a freshly accepted connection that has not echoed anything yet.
	StateOpen State = iota
	//StateActive has exchanged at least one message.
	StateActive
	//StateClosing saw an orderly peer close or a fatal I/O error.
	StateClosing
	//StateClosed is terminal: descriptor closed, table entry removed.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

//ioEvent is the outcome of one I/O attempt on a connection.
type ioEvent uint8

const (
	evData ioEvent = iota
	evWouldBlock
	evPeerClosed
	evFailed
	evReleased
)

//transition is the full state x event table. Pairs not listed keep the state.
func transition(s State, ev ioEvent) State {
	switch s {
	case StateOpen, StateActive:
		switch ev {
		case evData:
			return StateActive
		case evPeerClosed, evFailed:
			return StateClosing
		}
	case StateClosing:
		if ev == evReleased {
			return StateClosed
		}
	}
	return s
}

//serving reports whether I/O may still be attempted in state s.
func (s State) serving() bool {
	return s == StateOpen || s == StateActive
}
