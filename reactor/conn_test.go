package reactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnPendingQueue(t *testing.T) {
	c := newConn(7, nil)
	assert.False(t, c.hasPending())
	assert.Equal(t, "unknown", c.peerString())

	src := []byte("hello")
	c.enqueue(src)
	c.enqueue(nil)
	c.enqueue([]byte("world"))
	src[0] = 'j'

	require.True(t, c.hasPending())
	assert.Equal(t, 10, c.pendingBytes)
	assert.Equal(t, "hello", string(c.front()), "queued bytes must be a copy")

	c.consume(2)
	assert.Equal(t, "llo", string(c.front()))
	assert.Equal(t, 8, c.pendingBytes)

	c.consume(3)
	assert.Equal(t, "world", string(c.front()))

	c.consume(5)
	assert.False(t, c.hasPending())

	c.enqueue([]byte("again"))
	c.release()
	assert.False(t, c.hasPending())
	assert.Nil(t, c.pending)
}
