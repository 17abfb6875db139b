package merge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func threePartitions() []*fakeHandle {
	return []*fakeHandle{
		newFakeHandle(0, 1, 4, 7),
		newFakeHandle(1, 2, 5, 8),
		newFakeHandle(2, 3, 6, 9),
	}
}

func TestSortedMerge(t *testing.T) {
	for _, batchSize := range []int{1, 2, 5} {
		hs := threePartitions()
		for _, h := range hs {
			h.batchSize = batchSize
		}
		opts := DefaultOptions()
		opts.Sort = true
		m := startMerger(t, handles(hs...), opts)
		require.Equal(t, ModeSorted, m.Mode())
		require.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7, 8, 9}, collectKeys(t, m))

		ok, err := m.Advance()
		require.NoError(t, err)
		require.False(t, ok)
	}
}

func TestSortedMergeLimit(t *testing.T) {
	opts := DefaultOptions()
	opts.Sort = true
	opts.Limit = 4
	m := startMerger(t, handles(threePartitions()...), opts)

	var keys []int64
	for i := 0; i < 4; i++ {
		ok, err := m.Advance()
		require.NoError(t, err)
		require.True(t, ok)
		keys = append(keys, m.Current().Values[0].(int64))
	}
	require.Equal(t, []int64{1, 2, 3, 4}, keys)
	require.True(t, m.StopSignal().Stopped())

	ok, err := m.Advance()
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, int64(4), m.Stats().RowCount())
}

func TestSortedMergeOffset(t *testing.T) {
	opts := DefaultOptions()
	opts.Offset = 2
	opts.Limit = 3
	m := startMerger(t, handles(threePartitions()...), opts)
	require.Equal(t, ModeSorted, m.Mode())
	require.Equal(t, []int64{3, 4, 5}, collectKeys(t, m))
}

func TestOffsetPastEnd(t *testing.T) {
	opts := DefaultOptions()
	opts.Offset = 20
	m := startMerger(t, handles(threePartitions()...), opts)
	require.Empty(t, collectKeys(t, m))
}

func TestDescendingMerge(t *testing.T) {
	hs := []*fakeHandle{
		newFakeHandle(0, 9, 6, 3),
		newFakeHandle(1, 8, 5, 2),
		newFakeHandle(2, 7, 4, 1),
	}
	opts := DefaultOptions()
	opts.Sort = true
	opts.DescendingKeyIndices = []int{0}
	m := startMerger(t, handles(hs...), opts)
	require.Equal(t, []int64{9, 8, 7, 6, 5, 4, 3, 2, 1}, collectKeys(t, m))
}

func TestSortedTieBreak(t *testing.T) {
	opts := DefaultOptions()
	opts.Sort = true
	m := startMerger(t, handles(newFakeHandle(0, 1, 5), newFakeHandle(1, 5, 6)), opts)

	var partns []int
	var keys []int64
	for {
		ok, err := m.Advance()
		require.NoError(t, err)
		if !ok {
			break
		}
		keys = append(keys, m.Current().Values[0].(int64))
		partns = append(partns, m.Current().Values[1].(int))
	}
	require.Equal(t, []int64{1, 5, 5, 6}, keys)
	require.Equal(t, []int{0, 0, 1, 1}, partns)
}

func TestUnsortedMerge(t *testing.T) {
	m := startMerger(t, handles(threePartitions()...), DefaultOptions())
	require.Equal(t, ModeUnsorted, m.Mode())
	require.ElementsMatch(t, []int64{1, 2, 3, 4, 5, 6, 7, 8, 9}, collectKeys(t, m))
}

func TestUnsortedMergeLimit(t *testing.T) {
	for _, limit := range []int64{0, 1, 5, 9, 20} {
		opts := DefaultOptions()
		opts.Limit = limit
		m := startMerger(t, handles(threePartitions()...), opts)

		keys := collectKeys(t, m)
		expect := limit
		if expect > 9 {
			expect = 9
		}
		require.Len(t, keys, int(expect), "limit %v", limit)
		require.Subset(t, []int64{1, 2, 3, 4, 5, 6, 7, 8, 9}, keys)
	}
}

func TestEmptyPartitions(t *testing.T) {
	m := startMerger(t, nil, DefaultOptions())
	require.Empty(t, collectKeys(t, m))

	opts := DefaultOptions()
	opts.Sort = true
	m = startMerger(t, handles(newFakeHandle(0), newFakeHandle(1, 3)), opts)
	require.Equal(t, []int64{3}, collectKeys(t, m))
}

func TestConfigurationErrors(t *testing.T) {
	opts := DefaultOptions()
	opts.GroupBySorted = true
	_, err := NewStreamMerger(nil, testDecoder, opts)
	require.ErrorIs(t, err, ErrConfiguration)
	require.ErrorIs(t, err, ErrGroupByUnsorted)

	// a positive offset sorts.
	opts.Offset = 1
	_, err = NewStreamMerger(nil, testDecoder, opts)
	require.NoError(t, err)

	opts = DefaultOptions()
	opts.DescendingKeyIndices = []int{-1}
	_, err = NewStreamMerger(nil, testDecoder, opts)
	require.ErrorIs(t, err, ErrConfiguration)

	_, err = NewStreamMerger(nil, nil, DefaultOptions())
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestMisuse(t *testing.T) {
	hs := threePartitions()
	m, err := NewStreamMerger(handles(hs...), testDecoder, DefaultOptions())
	require.NoError(t, err)

	_, err = m.Advance()
	require.ErrorIs(t, err, ErrNotStarted)
	require.ErrorIs(t, m.Reset(), ErrNotStarted)

	require.NoError(t, m.Start(context.Background()))
	require.ErrorIs(t, m.Start(context.Background()), ErrAlreadyStarted)
	require.ErrorIs(t, m.Reset(), ErrResetUnsupported)
	require.ErrorIs(t, m.Reset(), ErrMisuse)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	for _, h := range hs {
		require.True(t, h.isClosed())
	}
	_, err = m.Advance()
	require.ErrorIs(t, err, ErrClosed)
}

func TestSortedReset(t *testing.T) {
	hs := threePartitions()
	opts := DefaultOptions()
	opts.Sort = true
	m := startMerger(t, handles(hs...), opts)

	for i := 0; i < 3; i++ {
		ok, err := m.Advance()
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.NoError(t, m.Reset())
	require.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7, 8, 9}, collectKeys(t, m))
	for _, h := range hs {
		require.Equal(t, 1, h.restarts)
	}

	// exhaustion does not raise stop, reset again.
	require.NoError(t, m.Reset())
	require.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7, 8, 9}, collectKeys(t, m))
}

func TestResetAfterStop(t *testing.T) {
	opts := DefaultOptions()
	opts.Sort = true
	opts.Limit = 2
	m := startMerger(t, handles(threePartitions()...), opts)
	require.Equal(t, []int64{1, 2}, collectKeys(t, m))
	require.ErrorIs(t, m.Reset(), ErrStopped)
}

func TestResetNotRestartable(t *testing.T) {
	opts := DefaultOptions()
	opts.Sort = true
	m := startMerger(t, []ScanHandle{plainHandle{newFakeHandle(0, 1, 2)}}, opts)
	require.ErrorIs(t, m.Reset(), ErrNotRestartable)
	require.Equal(t, []int64{1, 2}, collectKeys(t, m))
}

func TestScanFailure(t *testing.T) {
	for _, sort := range []bool{false, true} {
		hs := threePartitions()
		// the failure can only be queued once rows of partition 1 were
		// consumed, so some rows are always delivered first.
		hs[1] = newFakeHandle(1, 2, 5, 8, 11, 14)
		hs[1].failAt = 3
		opts := DefaultOptions()
		opts.Sort = sort
		m := startMerger(t, handles(hs...), opts)

		var err error
		delivered := 0
		for {
			var ok bool
			ok, err = m.Advance()
			if err != nil || !ok {
				break
			}
			delivered++
		}
		require.Error(t, err, "sort %v", sort)
		require.Greater(t, delivered, 0)
		require.ErrorIs(t, err, ErrScanFailed)
		require.ErrorIs(t, err, errFetch)

		var failure *ScanFailure
		require.True(t, errors.As(err, &failure))
		require.Equal(t, hs[1].partn, failure.Partition)
		require.False(t, failure.Decode)
		require.True(t, m.StopSignal().Stopped())

		// no stale row survives the failure.
		require.Nil(t, m.Current().Values)
		require.Nil(t, m.Current().Key)
		require.Equal(t, err, m.Err())

		// sticky.
		ok, err2 := m.Advance()
		require.False(t, ok)
		require.Equal(t, err, err2)
		require.Equal(t, err, m.Err())
		require.Nil(t, m.Current().Values)
	}
}

func TestDecodeFailure(t *testing.T) {
	hs := threePartitions()
	hs[2].badRowAt = 1
	opts := DefaultOptions()
	opts.Sort = true
	m := startMerger(t, handles(hs...), opts)

	var err error
	for {
		var ok bool
		ok, err = m.Advance()
		if err != nil || !ok {
			break
		}
	}
	var failure *ScanFailure
	require.True(t, errors.As(err, &failure))
	require.True(t, failure.Decode)
	require.Equal(t, hs[2].partn, failure.Partition)
}

func TestExternalStop(t *testing.T) {
	opts := DefaultOptions()
	opts.Sort = true
	m := startMerger(t, handles(threePartitions()...), opts)

	ok, err := m.Advance()
	require.NoError(t, err)
	require.True(t, ok)

	m.Stop()
	ok, err = m.Advance()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSharedStopSignal(t *testing.T) {
	stop := NewStopSignal()
	stop.Stop()
	opts := DefaultOptions()
	opts.Stop = stop
	m := startMerger(t, handles(threePartitions()...), opts)
	require.Empty(t, collectKeys(t, m))
}

func TestContextCancel(t *testing.T) {
	h := newFakeHandle(0, 1, 2)
	h.block = true
	opts := DefaultOptions()
	opts.Sort = true
	opts.Config = testConfig()
	m, err := NewStreamMerger(handles(h), testDecoder, opts)
	require.NoError(t, err)
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Start(ctx))
	time.AfterFunc(30*time.Millisecond, cancel)

	ok, err := m.Advance()
	require.False(t, ok)
	require.ErrorIs(t, err, context.Canceled)
}

func TestScanStats(t *testing.T) {
	opts := DefaultOptions()
	opts.Sort = true
	m := startMerger(t, handles(threePartitions()...), opts)

	_, ok := m.Stats().FirstRowLatency()
	require.False(t, ok)
	require.Len(t, collectKeys(t, m), 9)

	_, ok = m.Stats().FirstRowLatency()
	require.True(t, ok)
	_, ok = m.Stats().TotalTime()
	require.True(t, ok)
	require.Equal(t, int64(9), m.Stats().RowCount())
	require.Equal(t, int64(6), m.Stats().FetchCount())

	counter := m.Stats().Registry().Get("merge.rows_merged")
	require.NotNil(t, counter)
}

func TestGroupBySortedDisablesRowLimit(t *testing.T) {
	opts := DefaultOptions()
	opts.Sort = true
	opts.GroupBySorted = true
	opts.Limit = 1
	opts.Offset = 1
	m := startMerger(t, handles(threePartitions()...), opts)
	require.Len(t, collectKeys(t, m), 9)
}

// A stop raised while the sorted merge waits on an empty partition must not
// deliver a row picked from the partitions that happened to have one.
func TestSortedStopDuringPick(t *testing.T) {
	row := func(key int64) Message {
		r, err := testDecoder.Decode(encodeTestRow(key, 0))
		require.NoError(t, err)
		return rowMessage(r)
	}
	newSorted := func() (*StreamMerger, *sortedMerge) {
		opts := DefaultOptions()
		opts.Sort = true
		opts.Config = testConfig()
		m, err := NewStreamMerger(handles(threePartitions()...), testDecoder, opts)
		require.NoError(t, err)
		s := m.strategy.(*sortedMerge)
		m.queues = s.open(2)
		return m, s
	}

	// partition 1 has not produced its smaller key yet.
	m, s := newSorted()
	require.True(t, m.queues[0].Enqueue(row(5), nil))
	m.Stop()
	r, ok, err := s.next(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, r.Values)

	// a failure published before the stop is reported instead.
	m, s = newSorted()
	require.True(t, m.queues[0].Enqueue(row(5), nil))
	require.True(t, m.queues[0].Enqueue(errorMessage(errFetch), nil))
	m.Stop()
	_, ok, err = s.next(context.Background())
	require.ErrorIs(t, err, errFetch)
	require.False(t, ok)
}
