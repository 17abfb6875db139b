package merge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueOrder(t *testing.T) {
	q := NewQueue(3)
	require.Equal(t, 3, q.Cap())
	for i := 0; i < 3; i++ {
		require.True(t, q.Enqueue(rowMessage(Row{Values: []interface{}{i}}), nil))
	}
	require.Equal(t, 3, q.Len())
	for i := 0; i < 3; i++ {
		msg, ok := q.Dequeue(time.Millisecond)
		require.True(t, ok)
		require.Equal(t, i, msg.Row.Values[0])
	}
	_, ok := q.Dequeue(time.Millisecond)
	require.False(t, ok)
}

func TestQueueBlocksWhenFull(t *testing.T) {
	q := NewQueue(1)
	require.True(t, q.Enqueue(doneMessage(), nil))

	accepted := make(chan bool)
	go func() {
		accepted <- q.Enqueue(doneMessage(), nil)
	}()
	select {
	case <-accepted:
		t.Fatal("enqueue into a full queue returned")
	case <-time.After(20 * time.Millisecond):
	}

	_, ok := q.Dequeue(time.Millisecond)
	require.True(t, ok)
	require.True(t, <-accepted)
}

func TestQueueCloseReleasesProducer(t *testing.T) {
	q := NewQueue(1)
	require.True(t, q.Enqueue(doneMessage(), nil))

	accepted := make(chan bool)
	go func() {
		accepted <- q.Enqueue(doneMessage(), nil)
	}()
	q.Close()
	q.Close()
	require.False(t, <-accepted)
	require.True(t, q.IsClosed())
	require.False(t, q.Enqueue(doneMessage(), nil))
}

func TestQueueAbort(t *testing.T) {
	q := NewQueue(1)
	stop := NewStopSignal()
	require.True(t, q.Enqueue(doneMessage(), stop.Done()))
	require.True(t, stop.Stop())
	require.False(t, stop.Stop())
	require.False(t, q.Enqueue(doneMessage(), stop.Done()))
}

func TestKeyOrder(t *testing.T) {
	asc, err := NewKeyOrder(nil)
	require.NoError(t, err)
	k := func(cols ...string) SortKey {
		key := make(SortKey, len(cols))
		for i, c := range cols {
			key[i] = []byte(c)
		}
		return key
	}

	require.Less(t, asc.Compare(k("a", "b"), k("a", "c")), 0)
	require.Equal(t, 0, asc.Compare(k("a", "b"), k("a", "b")))
	require.Less(t, asc.Compare(k("a"), k("a", "b")), 0)

	desc, err := NewKeyOrder([]int{1})
	require.NoError(t, err)
	require.False(t, desc.Descending(0))
	require.True(t, desc.Descending(1))
	require.False(t, desc.Descending(5))
	require.Greater(t, desc.Compare(k("a", "b"), k("a", "c")), 0)
	require.Less(t, desc.Compare(k("a", "z"), k("b", "a")), 0)
}
