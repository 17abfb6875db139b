package merge

import "context"

// sortedMerge performs a k-way merge over one cursor per partition. The
// cursor that supplied the previous row is advanced lazily on the next
// call. Ties go to the lowest partition position.
type sortedMerge struct {
	m          *StreamMerger
	cursors    []*Cursor
	hasCurrent []bool
	primed     bool
	last       int
}

func newSortedMerge(m *StreamMerger) *sortedMerge {
	return &sortedMerge{m: m, last: -1}
}

func (s *sortedMerge) open(numHandles int) []*Queue {
	queues := make([]*Queue, numHandles)
	if len(s.cursors) != numHandles {
		s.cursors = make([]*Cursor, numHandles)
	}
	for i := range queues {
		queues[i] = NewQueue(s.m.settings.QueueSize)
		if s.cursors[i] == nil {
			s.cursors[i] = newCursor(queues[i], s.m.stop, s.m.settings.PollTimeout)
		} else {
			s.cursors[i].reset(queues[i])
		}
	}
	s.hasCurrent = make([]bool, numHandles)
	s.primed, s.last = false, -1
	return queues
}

func (s *sortedMerge) next(ctx context.Context) (Row, bool, error) {
	if !s.primed {
		for i, cursor := range s.cursors {
			ok, err := cursor.Advance(ctx)
			if err != nil {
				return Row{}, false, err
			}
			s.hasCurrent[i] = ok
		}
		s.primed = true

	} else if s.last >= 0 {
		ok, err := s.cursors[s.last].Advance(ctx)
		if err != nil {
			return Row{}, false, err
		}
		s.hasCurrent[s.last] = ok
	}

	pick := -1
	for i, cursor := range s.cursors {
		if !s.hasCurrent[i] {
			continue
		}
		if pick < 0 || s.m.order.Compare(cursor.Current().Key, s.cursors[pick].Current().Key) < 0 {
			pick = i
		}
	}
	s.last = pick
	if pick < 0 {
		return Row{}, false, nil
	}
	// a cursor drained by a stop raised during this call no longer takes
	// part, so the pick may not be the smallest remaining key.
	if s.m.stop.Stopped() {
		return Row{}, false, s.m.pendingFailure()
	}
	return s.cursors[pick].Current(), true, nil
}
