package reactor

//connTable maps a descriptor to its connection. Small descriptors live in a
//slice indexed by fd, anything past the border goes to a map.
//It is only touched from the dispatcher goroutine and needs no locking.
type connTable struct {
	conns  []*conn
	border int

	slowConns map[int]*conn

	count int
}

const defaultTableCapacity = 1 << 12

func newConnTable(capacity int) *connTable {
	if capacity <= 0 {
		capacity = defaultTableCapacity
	}

	return &connTable{
		conns:     make([]*conn, capacity),
		border:    capacity,
		slowConns: make(map[int]*conn),
	}
}

//add inserts c and reports false if its descriptor is already present.
func (t *connTable) add(c *conn) bool {
	if c.fd < t.border {
		if t.conns[c.fd] != nil {
			return false
		}
		t.conns[c.fd] = c
		t.count++
		return true
	}

	//slow path, for big fd values
	if _, exists := t.slowConns[c.fd]; exists {
		return false
	}
	t.slowConns[c.fd] = c
	t.count++
	return true
}

func (t *connTable) get(fd int) *conn {
	if fd < 0 {
		return nil
	}
	if fd < t.border {
		return t.conns[fd]
	}
	return t.slowConns[fd]
}

func (t *connTable) remove(fd int) *conn {
	c := t.get(fd)
	if c == nil {
		return nil
	}

	if fd < t.border {
		t.conns[fd] = nil
	} else {
		delete(t.slowConns, fd)
	}
	t.count--
	return c
}

func (t *connTable) len() int {
	return t.count
}

//each calls fn for every connection. fn may remove the connection it is given.
func (t *connTable) each(fn func(c *conn)) {
	for _, c := range t.conns {
		if c != nil {
			fn(c)
		}
	}

	slow := make([]*conn, 0, len(t.slowConns))
	for _, c := range t.slowConns {
		slow = append(slow, c)
	}
	for _, c := range slow {
		fn(c)
	}
}
