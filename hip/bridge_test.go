package hip

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameQueuePushDrainFIFO(t *testing.T) {
	q := NewFrameQueue(3)
	q.Push([]byte("a"))
	q.Push([]byte("b"))
	q.Push([]byte("c"))
	require.Equal(t, 3, q.Len())

	drained := q.Drain()
	require.Equal(t, [][]byte{[]byte("a"), []byte("b"), []byte("c")}, drained)
	require.Equal(t, 0, q.Len())
}

func TestFrameQueueOverflowDropsOldest(t *testing.T) {
	q := NewFrameQueue(2)
	q.Push([]byte("a"))
	q.Push([]byte("b"))
	q.Push([]byte("c")) // "a" should be dropped

	require.Equal(t, [][]byte{[]byte("b"), []byte("c")}, q.Drain())
}
