package merge

// RowSource is the pull interface a SortedGroupOperator reads from.
// StreamMerger implements it.
type RowSource interface {
	Advance() (bool, error)
	Current() Row
	Close() error
}

// GroupFetchLimit is the number of groups needed to serve limit and
// offset: limit+offset when both are set, offset when only offset is set,
// limit when only limit is set, otherwise unbounded (NoLimit).
func GroupFetchLimit(limit, offset int64) int64 {
	switch {
	case offset > 0 && limit >= 0:
		return limit + offset
	case offset > 0:
		return offset
	case limit >= 0:
		return limit
	}
	return NoLimit
}

// SortedGroupOperator aggregates consecutive rows sharing a group key. The
// source must deliver each group contiguously, which holds when the group
// key is a prefix of the sort order. Groups up to offset are consumed
// without being aggregated; reading stops, and the source is closed, once
// the group past the fetch limit shows up.
type SortedGroupOperator[K comparable, A any, R any] struct {
	source     RowSource
	offset     int64
	fetchLimit int64

	keyOf  func(Row) K
	init   func() A
	add    func(A, Row) A
	result func(K, A) R

	groups  int64
	lastKey K
	haveKey bool
	acc     A
	accOpen bool
	done    bool
	err     error
	rows    int64
}

func NewSortedGroupOperator[K comparable, A any, R any](
	source RowSource, limit, offset int64,
	keyOf func(Row) K, init func() A, add func(A, Row) A, result func(K, A) R,
) *SortedGroupOperator[K, A, R] {

	if offset < 0 {
		offset = 0
	}
	return &SortedGroupOperator[K, A, R]{
		source:     source,
		offset:     offset,
		fetchLimit: GroupFetchLimit(limit, offset),
		keyOf:      keyOf,
		init:       init,
		add:        add,
		result:     result,
	}
}

// Next returns the next finalized group. Returns false once exhausted.
func (g *SortedGroupOperator[K, A, R]) Next() (R, bool, error) {
	var zero R
	if g.err != nil {
		return zero, false, g.err
	}

	for !g.done {
		ok, err := g.source.Advance()
		if err != nil {
			g.err = err
			g.closeSource()
			return zero, false, err
		}
		if !ok {
			g.closeSource()
			if g.accOpen {
				g.accOpen = false
				return g.result(g.lastKey, g.acc), true, nil
			}
			return zero, false, nil
		}
		g.rows++

		row := g.source.Current()
		key := g.keyOf(row)

		var out R
		emitted := false
		if !g.haveKey || key != g.lastKey {
			if g.accOpen {
				out, emitted = g.result(g.lastKey, g.acc), true
				g.accOpen = false
			}
			g.groups++
			if g.fetchLimit != NoLimit && g.groups > g.fetchLimit {
				g.closeSource()
				return out, emitted, nil
			}
			g.lastKey, g.haveKey = key, true
		}

		if g.groups > g.offset {
			if !g.accOpen {
				g.acc, g.accOpen = g.init(), true
			}
			g.acc = g.add(g.acc, row)
		}
		if emitted {
			return out, true, nil
		}
	}
	return zero, false, nil
}

// All drains the operator.
func (g *SortedGroupOperator[K, A, R]) All() ([]R, error) {
	var results []R
	for {
		r, ok, err := g.Next()
		if err != nil {
			return results, err
		}
		if !ok {
			return results, nil
		}
		results = append(results, r)
	}
}

// RowsRead counts the rows pulled from the source.
func (g *SortedGroupOperator[K, A, R]) RowsRead() int64 {
	return g.rows
}

func (g *SortedGroupOperator[K, A, R]) Close() error {
	return g.closeSource()
}

func (g *SortedGroupOperator[K, A, R]) closeSource() error {
	if g.done {
		return nil
	}
	g.done = true
	return g.source.Close()
}
