package merge

import "context"

// unsortedMerge drains one shared queue in arrival order until every feed
// has sent Done.
type unsortedMerge struct {
	m        *StreamMerger
	queue    *Queue
	numFeeds int
	done     int
}

func newUnsortedMerge(m *StreamMerger) *unsortedMerge {
	return &unsortedMerge{m: m}
}

func (u *unsortedMerge) open(numHandles int) []*Queue {
	u.queue = NewQueue(u.m.settings.QueueSize)
	u.numFeeds, u.done = numHandles, 0
	queues := make([]*Queue, numHandles)
	for i := range queues {
		queues[i] = u.queue
	}
	return queues
}

func (u *unsortedMerge) next(ctx context.Context) (Row, bool, error) {
	for u.done < u.numFeeds {
		msg, ok, err := poll(ctx, u.queue, u.m.stop, u.m.settings.PollTimeout)
		if err != nil {
			return Row{}, false, err
		}
		if !ok {
			return Row{}, false, nil
		}
		switch msg.Type {
		case MessageRow:
			return msg.Row, true, nil
		case MessageError:
			return Row{}, false, msg.Err
		case MessageDone:
			u.done++
		}
	}
	return Row{}, false, nil
}
