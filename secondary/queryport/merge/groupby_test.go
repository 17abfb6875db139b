package merge

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// sliceSource serves rows whose first value is the group key.
type sliceSource struct {
	rows   []Row
	pos    int
	closed bool
}

func newSliceSource(groups ...int) *sliceSource {
	s := &sliceSource{}
	for g, size := range groups {
		for i := 0; i < size; i++ {
			s.rows = append(s.rows, Row{Values: []interface{}{g + 1, int64(i + 1)}})
		}
	}
	return s
}

func (s *sliceSource) Advance() (bool, error) {
	if s.pos >= len(s.rows) {
		return false, nil
	}
	s.pos++
	return true, nil
}

func (s *sliceSource) Current() Row {
	return s.rows[s.pos-1]
}

func (s *sliceSource) Close() error {
	s.closed = true
	return nil
}

type groupSum struct {
	Key   int
	Count int
	Sum   int64
}

func sumGroups(src RowSource, limit, offset int64) *SortedGroupOperator[int, groupSum, groupSum] {
	return NewSortedGroupOperator(src, limit, offset,
		func(row Row) int { return row.Values[0].(int) },
		func() groupSum { return groupSum{} },
		func(acc groupSum, row Row) groupSum {
			acc.Count++
			acc.Sum += row.Values[1].(int64)
			return acc
		},
		func(key int, acc groupSum) groupSum {
			acc.Key = key
			return acc
		})
}

func TestGroupFetchLimit(t *testing.T) {
	require.Equal(t, int64(5), GroupFetchLimit(3, 2))
	require.Equal(t, int64(2), GroupFetchLimit(NoLimit, 2))
	require.Equal(t, int64(3), GroupFetchLimit(3, 0))
	require.Equal(t, NoLimit, GroupFetchLimit(NoLimit, 0))
}

func TestSortedGroupAll(t *testing.T) {
	src := newSliceSource(2, 1, 3)
	results, err := sumGroups(src, NoLimit, 0).All()
	require.NoError(t, err)
	require.Equal(t, []groupSum{
		{Key: 1, Count: 2, Sum: 3},
		{Key: 2, Count: 1, Sum: 1},
		{Key: 3, Count: 3, Sum: 6},
	}, results)
	require.True(t, src.closed)
}

func TestSortedGroupLimitOffset(t *testing.T) {
	src := newSliceSource(1, 2, 3, 4, 5)
	op := sumGroups(src, 1, 2)
	results, err := op.All()
	require.NoError(t, err)
	require.Equal(t, []groupSum{{Key: 3, Count: 3, Sum: 6}}, results)

	// groups 1-3 and the first row of group 4 only.
	require.Equal(t, int64(1+2+3+1), op.RowsRead())
	require.True(t, src.closed)
}

func TestSortedGroupLimitOnly(t *testing.T) {
	src := newSliceSource(1, 1, 1)
	results, err := sumGroups(src, 2, 0).All()
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, 2, results[1].Key)
}

func TestSortedGroupEmpty(t *testing.T) {
	src := newSliceSource()
	results, err := sumGroups(src, NoLimit, 0).All()
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestSortedGroupOverMerger(t *testing.T) {
	// keys 1..9 grouped by key/4: {1,2,3} {4,5,6,7} {8,9}
	opts := DefaultOptions()
	opts.Sort = true
	opts.GroupBySorted = true
	opts.Limit = 1
	opts.Offset = 1
	m := startMerger(t, handles(threePartitions()...), opts)

	op := NewSortedGroupOperator(m, m.Limit(), m.Offset(),
		func(row Row) int64 { return row.Values[0].(int64) / 4 },
		func() []int64 { return nil },
		func(acc []int64, row Row) []int64 { return append(acc, row.Values[0].(int64)) },
		func(key int64, acc []int64) []int64 { return acc })

	results, err := op.All()
	require.NoError(t, err)
	require.Equal(t, [][]int64{{4, 5, 6, 7}}, results)
}

func TestSortedGroupSourceError(t *testing.T) {
	hs := threePartitions()
	hs[0].failAt = 1
	opts := DefaultOptions()
	opts.Sort = true
	opts.GroupBySorted = true
	m := startMerger(t, handles(hs...), opts)

	op := sumGroupsInt64(m)
	_, err := op.All()
	require.ErrorIs(t, err, ErrScanFailed)
	_, _, err = op.Next()
	require.ErrorIs(t, err, ErrScanFailed)
}

func sumGroupsInt64(src RowSource) *SortedGroupOperator[int64, int64, int64] {
	return NewSortedGroupOperator(src, NoLimit, 0,
		func(row Row) int64 { return row.Values[0].(int64) },
		func() int64 { return 0 },
		func(acc int64, row Row) int64 { return acc + 1 },
		func(key int64, acc int64) int64 { return acc })
}
