// Copyright 2014-Present Couchbase, Inc.
//
// Use of this software is governed by the Business Source License included
// in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
// in that file, in accordance with the Business Source License, use of this
// software will be governed by the Apache License, Version 2.0, included in
// the file licenses/APL2.txt.

package merge

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/couchbase/scanmerge/secondary/common"
	"github.com/couchbase/scanmerge/secondary/logging"
)

// NoLimit disables the row limit.
const NoLimit int64 = -1

type Mode int

const (
	ModeUnsorted Mode = iota
	ModeSorted
)

func (m Mode) String() string {
	if m == ModeSorted {
		return "sorted"
	}
	return "unsorted"
}

// Options configures a StreamMerger. Use DefaultOptions as the starting
// point; the zero value asks for zero rows.
type Options struct {
	RequestId string

	// Limit caps the number of rows delivered, NoLimit for no cap.
	Limit int64
	// Offset rows are skipped before the first delivered row. A positive
	// offset forces a sorted merge.
	Offset int64
	Sort   bool

	// DescendingKeyIndices lists the physical primary key columns whose
	// sort order is descending.
	DescendingKeyIndices []int

	// GroupBySorted hands limit and offset to a SortedGroupOperator
	// reading from the merger. Requires a sorted merge.
	GroupBySorted bool

	Stats  *ScanStats
	Stop   *StopSignal
	Config common.Config
}

func DefaultOptions() Options {
	return Options{Limit: NoLimit}
}

// StreamMerger merges the rows of several partition scans into one stream,
// either in primary key order or in arrival order, honoring a limit and an
// offset. Not safe for concurrent use; Stop may be called from any
// goroutine.
type StreamMerger struct {
	requestId     string
	handles       []ScanHandle
	decoder       RowDecoder
	limit         int64
	offset        int64
	mode          Mode
	groupBySorted bool
	order         KeyOrder
	settings      Settings
	stop          *StopSignal
	stats         *ScanStats
	log           logging.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	group    *errgroup.Group
	queues   []*Queue
	strategy strategy

	started    bool
	closed     bool
	skipped    bool
	finished   bool
	totalMoves int64
	current    Row
	err        error
}

type strategy interface {
	// open builds fresh queues and returns the queue of every handle.
	open(numHandles int) []*Queue
	next(ctx context.Context) (Row, bool, error)
}

// NewStreamMerger validates opts and prepares the merge. No scan is
// touched until Start.
func NewStreamMerger(handles []ScanHandle, decoder RowDecoder, opts Options) (*StreamMerger, error) {
	if decoder == nil {
		return nil, fmt.Errorf("%w: nil row decoder", ErrConfiguration)
	}

	sort := opts.Sort || opts.Offset > 0
	if opts.GroupBySorted && !sort {
		return nil, ErrGroupByUnsorted
	}
	order, err := NewKeyOrder(opts.DescendingKeyIndices)
	if err != nil {
		return nil, err
	}

	requestId := opts.RequestId
	if requestId == "" {
		requestId = uuid.NewString()
	}
	limit := opts.Limit
	if limit < 0 {
		limit = NoLimit
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	m := &StreamMerger{
		requestId:     requestId,
		handles:       handles,
		decoder:       decoder,
		limit:         limit,
		offset:        offset,
		groupBySorted: opts.GroupBySorted,
		order:         order,
		settings:      NewSettings(opts.Config),
		stop:          opts.Stop,
		stats:         opts.Stats,
		log:           logging.WithPrefix(fmt.Sprintf("StreamMerger[%v]", requestId)),
	}
	if m.stop == nil {
		m.stop = NewStopSignal()
	}
	if m.stats == nil {
		m.stats = NewScanStats(nil)
	}

	if sort {
		m.mode = ModeSorted
		m.strategy = newSortedMerge(m)
	} else {
		m.mode = ModeUnsorted
		m.strategy = newUnsortedMerge(m)
	}
	return m, nil
}

func (m *StreamMerger) RequestId() string { return m.requestId }
func (m *StreamMerger) Mode() Mode { return m.mode }
func (m *StreamMerger) Limit() int64 { return m.limit }
func (m *StreamMerger) Offset() int64 { return m.offset }
func (m *StreamMerger) GroupBySorted() bool { return m.groupBySorted }
func (m *StreamMerger) Stats() *ScanStats { return m.stats }
func (m *StreamMerger) StopSignal() *StopSignal { return m.stop }

// Start launches one feed per partition. ctx bounds the whole merge.
func (m *StreamMerger) Start(ctx context.Context) error {
	if m.closed {
		return ErrClosed
	}
	if m.started {
		return ErrAlreadyStarted
	}
	m.started = true
	m.ctx = ctx
	m.log.Debugf("merge started: mode %v limit %v offset %v partitions %v",
		m.mode, m.limit, m.offset, len(m.handles))
	m.launch()
	return nil
}

func (m *StreamMerger) launch() {
	genCtx, cancel := context.WithCancel(m.ctx)
	group, gctx := errgroup.WithContext(genCtx)
	m.cancel, m.group = cancel, group

	m.queues = m.strategy.open(len(m.handles))
	for i, handle := range m.handles {
		feed := newFeed(m.requestId, handle, m.decoder, m.queues[i], m.stop, m.stats, m.log)
		group.Go(func() error {
			return feed.Run(gctx)
		})
	}
}

// teardown stops the feeds of the current generation and waits for them.
func (m *StreamMerger) teardown() error {
	if m.group == nil {
		return nil
	}
	m.cancel()
	for _, q := range m.queues {
		q.Close()
	}
	err := m.group.Wait()
	m.group = nil
	return err
}

// Advance moves to the next merged row. Returns false at the end of the
// stream, once the limit was delivered or after Stop. A failure is sticky.
func (m *StreamMerger) Advance() (bool, error) {
	if m.closed {
		return false, ErrClosed
	}
	if !m.started {
		return false, ErrNotStarted
	}
	if m.err != nil {
		return false, m.err
	}
	if m.finished {
		return false, nil
	}
	if m.limitReached() {
		m.stop.Stop()
		m.finish()
		return false, nil
	}
	if m.stop.Stopped() {
		if err := m.pendingFailure(); err != nil {
			return false, m.abort(err)
		}
		m.finish()
		return false, nil
	}

	if !m.skipped {
		m.skipped = true
		if !m.groupBySorted {
			for i := int64(0); i < m.offset; i++ {
				_, ok, err := m.strategy.next(m.ctx)
				if err != nil {
					return false, m.abort(err)
				}
				if !ok {
					if err := m.ctx.Err(); err != nil {
						return false, m.abort(err)
					}
					m.finish()
					return false, nil
				}
			}
		}
	}

	row, ok, err := m.strategy.next(m.ctx)
	if err != nil {
		return false, m.abort(err)
	}
	if !ok {
		// feeds end with Done when ctx is cancelled.
		if err := m.ctx.Err(); err != nil {
			return false, m.abort(err)
		}
		m.finish()
		return false, nil
	}

	m.current = row
	m.totalMoves++
	if m.totalMoves == 1 {
		m.stats.SetFirstRow()
	}
	m.stats.IncrementRowCount(1)
	if m.limitReached() {
		m.log.Debugf("limit %v reached", m.limit)
		m.stop.Stop()
	}
	return true, nil
}

// Current returns the row of the last successful Advance. After a failure
// there is no current row; Err reports the failure.
func (m *StreamMerger) Current() Row {
	return m.current
}

// Err returns the failure that aborted the merge, if any.
func (m *StreamMerger) Err() error {
	return m.err
}

func (m *StreamMerger) limitReached() bool {
	return !m.groupBySorted && m.limit != NoLimit && m.totalMoves >= m.limit
}

// pendingFailure looks for an Error message published before the stop
// signal was raised.
func (m *StreamMerger) pendingFailure() error {
	for _, q := range m.queues {
		for {
			msg, ok := q.TryDequeue()
			if !ok {
				break
			}
			if msg.Type == MessageError {
				return msg.Err
			}
		}
	}
	return nil
}

func (m *StreamMerger) abort(err error) error {
	m.err = err
	m.current = Row{}
	m.stop.Stop()
	m.stats.SetTotalTime()
	m.log.Errorf("merge aborted after %v rows: %v", m.totalMoves, err)
	return err
}

func (m *StreamMerger) finish() {
	if !m.finished {
		m.finished = true
		m.stats.SetTotalTime()
		m.log.Debugf("merge finished: %v", m.stats)
	}
}

// Stop raises the stop signal. Safe to call from any goroutine.
func (m *StreamMerger) Stop() {
	if m.stop.Stop() {
		m.log.Debugf("stop requested")
	}
}

// Reset rewinds a sorted merge to its first row. Every handle must be
// Restartable.
func (m *StreamMerger) Reset() error {
	if m.closed {
		return ErrClosed
	}
	if !m.started {
		return ErrNotStarted
	}
	if m.mode != ModeSorted {
		return ErrResetUnsupported
	}
	if m.stop.Stopped() {
		return ErrStopped
	}
	for _, handle := range m.handles {
		if _, ok := handle.(Restartable); !ok {
			return ErrNotRestartable
		}
	}

	if err := m.teardown(); err != nil {
		m.log.Warnf("reset: feed failure during teardown: %v", err)
	}
	for _, handle := range m.handles {
		if err := handle.(Restartable).Restart(); err != nil {
			return m.abort(&ScanFailure{RequestId: m.requestId, Partition: handle.PartitionId(), Cause: err})
		}
	}

	m.skipped, m.finished = false, false
	m.totalMoves, m.current, m.err = 0, Row{}, nil
	m.launch()
	m.log.Debugf("merge reset")
	return nil
}

// Close stops all feeds and closes every handle.
func (m *StreamMerger) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	m.stop.Stop()

	if err := m.teardown(); err != nil {
		m.log.Debugf("close: %v", err)
	}
	var errs []error
	for _, handle := range m.handles {
		if err := handle.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%v: %w", handle.PartitionId(), err))
		}
	}
	if m.started {
		m.stats.SetTotalTime()
	}
	return errors.Join(errs...)
}
