package merge

import (
	"context"
	"time"
)

// Cursor is the consumer side of one partition queue in sorted mode.
type Cursor struct {
	queue       *Queue
	stop        *StopSignal
	pollTimeout time.Duration

	current   Row
	exhausted bool
}

func newCursor(queue *Queue, stop *StopSignal, pollTimeout time.Duration) *Cursor {
	return &Cursor{queue: queue, stop: stop, pollTimeout: pollTimeout}
}

// Advance moves to the next row of the partition. Returns false once the
// partition is exhausted or the stop signal is raised while waiting.
func (c *Cursor) Advance(ctx context.Context) (bool, error) {
	if c.exhausted {
		return false, nil
	}
	msg, ok, err := poll(ctx, c.queue, c.stop, c.pollTimeout)
	if err != nil {
		return false, err
	}
	if !ok {
		c.exhausted = true
		return false, nil
	}
	switch msg.Type {
	case MessageRow:
		c.current = msg.Row
		return true, nil
	case MessageError:
		c.exhausted = true
		return false, msg.Err
	}
	c.exhausted = true
	return false, nil
}

func (c *Cursor) Current() Row {
	return c.current
}

// reset attaches the cursor to a fresh queue.
func (c *Cursor) reset(queue *Queue) {
	c.queue = queue
	c.current = Row{}
	c.exhausted = false
}

// poll waits for the next message. On every timeout it checks ctx and the
// stop signal. After stop it drains what is buffered looking for a failure
// and otherwise reports end of stream.
func poll(ctx context.Context, queue *Queue, stop *StopSignal,
	timeout time.Duration) (Message, bool, error) {

	for {
		if msg, ok := queue.Dequeue(timeout); ok {
			return msg, true, nil
		}
		if err := ctx.Err(); err != nil {
			return Message{}, false, err
		}
		if stop.Stopped() || queue.IsClosed() {
			for {
				msg, ok := queue.TryDequeue()
				if !ok {
					return Message{}, false, nil
				}
				if msg.Type == MessageError {
					return Message{}, false, msg.Err
				}
			}
		}
	}
}
