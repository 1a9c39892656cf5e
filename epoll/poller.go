//go:build linux

//Package epoll wraps the Linux epoll(7) readiness notification facility.
package epoll

import (
	"fmt"
	"os"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

//DefaultMaxEvents bounds the number of events a single Wait call can report.
const DefaultMaxEvents = 10

//Interest is the set of readiness conditions a descriptor is registered for.
type Interest uint32

const (
	Readable Interest = 1 << iota
	Writable
)

//Trigger selects how readiness is reported for a descriptor.
type Trigger uint8

const (
	//LevelTriggered reports a descriptor on every Wait while the condition holds.
	LevelTriggered Trigger = iota
	//EdgeTriggered reports a descriptor once per readiness transition.
	//The caller must drain the descriptor until EAGAIN before waiting again.
	EdgeTriggered
)

//Event is one ready descriptor from a Wait call.
type Event struct {
	Fd       int
	Readable bool
	Writable bool
	Hangup   bool
	Error    bool
}

//PollError is returned for failed epoll syscalls.
type PollError struct {
	Op  string
	Fd  int
	Err error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("epoll %s: %s, epoll fd: %d", e.Op, e.Err.Error(), e.Fd)
}

func (e *PollError) Unwrap() error {
	return e.Err
}

//Poller is an epoll instance plus an eventfd used to interrupt a blocked Wait.
//Except for Wake it must be used from a single goroutine.
type Poller struct {
	fd     int
	wakeFd int

	raw        []unix.EpollEvent
	registered map[int]Interest
}

//New creates a Poller reporting at most maxEvents descriptors per Wait.
func New(maxEvents int) (*Poller, error) {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}

	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, &PollError{Op: "create", Fd: -1, Err: os.NewSyscallError("epoll_create1", err)}
	}

	wakeFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(fd)
		return nil, &PollError{Op: "create", Fd: fd, Err: os.NewSyscallError("eventfd", err)}
	}

	p := &Poller{
		fd:         fd,
		wakeFd:     wakeFd,
		raw:        make([]unix.EpollEvent, maxEvents),
		registered: make(map[int]Interest),
	}

	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFd)}
	if err = unix.EpollCtl(fd, unix.EPOLL_CTL_ADD, wakeFd, &ev); err != nil {
		_ = p.Close()
		return nil, &PollError{Op: "create", Fd: fd, Err: os.NewSyscallError("epoll_ctl", err)}
	}

	return p, nil
}

//Fd returns the epoll descriptor.
func (p *Poller) Fd() int {
	return p.fd
}

//Add registers fd for interest.
func (p *Poller) Add(fd int, interest Interest, trigger Trigger) error {
	if err := p.ctl(unix.EPOLL_CTL_ADD, fd, interest, trigger); err != nil {
		return err
	}
	p.registered[fd] = interest
	return nil
}

//Modify replaces the interest set of an already registered fd.
//Re-arming an edge-triggered descriptor reports it again if it is ready right now.
func (p *Poller) Modify(fd int, interest Interest, trigger Trigger) error {
	if err := p.ctl(unix.EPOLL_CTL_MOD, fd, interest, trigger); err != nil {
		return err
	}
	p.registered[fd] = interest
	return nil
}

//Remove deregisters fd. It must be called before fd is closed.
func (p *Poller) Remove(fd int) error {
	delete(p.registered, fd)
	if err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return &PollError{Op: "remove", Fd: p.fd, Err: os.NewSyscallError("epoll_ctl", err)}
	}
	return nil
}

//Registered reports whether fd is in the interest set and what it is registered for.
func (p *Poller) Registered(fd int) (Interest, bool) {
	interest, ok := p.registered[fd]
	return interest, ok
}

//Len returns the number of registered descriptors.
func (p *Poller) Len() int {
	return len(p.registered)
}

func (p *Poller) ctl(op int, fd int, interest Interest, trigger Trigger) error {
	ev := unix.EpollEvent{Fd: int32(fd)}
	if interest&Readable != 0 {
		ev.Events |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if interest&Writable != 0 {
		ev.Events |= unix.EPOLLOUT
	}
	if trigger == EdgeTriggered {
		ev.Events |= unix.EPOLLET
	}

	if err := unix.EpollCtl(p.fd, op, fd, &ev); err != nil {
		name := "add"
		if op == unix.EPOLL_CTL_MOD {
			name = "modify"
		}
		return &PollError{Op: name, Fd: p.fd, Err: os.NewSyscallError("epoll_ctl", err)}
	}
	return nil
}

//Wait blocks until at least one registered descriptor is ready, timeout elapses or Wake is called.
//A negative timeout blocks forever. At most min(len(events), maxEvents) events are written.
//Wake-ups are consumed internally, so Wait may return 0 events without error.
//An interrupted wait is returned as a PollError wrapping EINTR.
func (p *Poller) Wait(events []Event, timeout time.Duration) (int, error) {
	msec := -1
	if timeout >= 0 {
		msec = int(timeout.Milliseconds())
	}

	raw := p.raw
	if len(events) < len(raw) {
		raw = raw[:len(events)]
	}

	n, err := unix.EpollWait(p.fd, raw, msec)
	if err != nil {
		return 0, &PollError{Op: "wait", Fd: p.fd, Err: err}
	}

	cnt := 0
	for i := 0; i < n; i++ {
		ev := raw[i]
		if int(ev.Fd) == p.wakeFd {
			p.drainWake()
			continue
		}

		events[cnt] = Event{
			Fd:       int(ev.Fd),
			Readable: ev.Events&unix.EPOLLIN != 0,
			Writable: ev.Events&unix.EPOLLOUT != 0,
			Hangup:   ev.Events&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0,
			Error:    ev.Events&unix.EPOLLERR != 0,
		}
		cnt++
	}

	return cnt, nil
}

//Wake interrupts a Wait blocked in another goroutine.
func (p *Poller) Wake() error {
	var one uint64 = 1
	_, err := unix.Write(p.wakeFd, (*[8]byte)(unsafe.Pointer(&one))[:])
	if err != nil && err != unix.EAGAIN {
		return os.NewSyscallError("write", err)
	}
	return nil
}

func (p *Poller) drainWake() {
	var buff [8]byte
	_, _ = unix.Read(p.wakeFd, buff[:])
}

//Close releases the epoll instance. Registered descriptors are not closed.
func (p *Poller) Close() error {
	wakeErr := unix.Close(p.wakeFd)
	err := unix.Close(p.fd)
	if err == nil {
		err = wakeErr
	}
	if err != nil {
		return &PollError{Op: "close", Fd: p.fd, Err: err}
	}
	return nil
}
