package reactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnTable(t *testing.T) {
	type testCase []int

	testCases := []testCase{
		{3},
		{3, 4, 5},
		{1 << 17, 1<<17 + 1, 1<<17 + 2},
		{5, 6, 1 << 20, 7, 1<<20 + 1},
	}

	capacityVariants := []int{1, 8, 1 << 10, 0}
	for _, capacity := range capacityVariants {
		table := newConnTable(capacity)

		for _, tc := range testCases {
			for _, fd := range tc {
				assert.True(t, table.add(newConn(fd, nil)))
				assert.False(t, table.add(newConn(fd, nil)), "duplicate fd %d", fd)
			}
			assert.Equal(t, len(tc), table.len())

			seen := 0
			table.each(func(c *conn) { seen++ })
			assert.Equal(t, len(tc), seen)

			for _, fd := range tc {
				c := table.get(fd)
				if assert.NotNil(t, c) {
					assert.Equal(t, fd, c.fd)
				}
				assert.Same(t, c, table.remove(fd))
				assert.Nil(t, table.get(fd))
				assert.Nil(t, table.remove(fd))
			}
			assert.Zero(t, table.len())
		}
	}

	assert.Nil(t, newConnTable(4).get(-1))
}

func TestConnTableEachAllowsRemoval(t *testing.T) {
	table := newConnTable(4)
	for _, fd := range []int{1, 2, 10, 11} {
		table.add(newConn(fd, nil))
	}

	table.each(func(c *conn) {
		table.remove(c.fd)
	})
	assert.Zero(t, table.len())
}

func BenchmarkConnTable(b *testing.B) {
	table := newConnTable(1 << 14)

	fds := []int{
		1, 2, 3, 4, 5, 6, 1<<14 - 1, 1 << 14, 1<<14 + 1, 1 << 15,
	}
	conns := make([]*conn, len(fds))
	for i, fd := range fds {
		conns[i] = newConn(fd, nil)
	}

	for i := 0; i < b.N; i++ {
		for _, c := range conns {
			table.add(c)
		}
		for _, fd := range fds {
			table.get(fd)
		}
		for _, fd := range fds {
			table.remove(fd)
		}
	}
}
