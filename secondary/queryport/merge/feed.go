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
	"time"

	"github.com/couchbase/scanmerge/secondary/logging"
)

// Feed drives one partition scan and pushes its rows into a queue. It
// keeps at most one fetch outstanding and ends by pushing exactly one
// Error or Done message.
type Feed struct {
	requestId string
	handle    ScanHandle
	decoder   RowDecoder
	queue     *Queue
	stop      *StopSignal
	stats     *ScanStats
	log       logging.Logger
}

func newFeed(requestId string, handle ScanHandle, decoder RowDecoder,
	queue *Queue, stop *StopSignal, stats *ScanStats, log logging.Logger) *Feed {

	return &Feed{
		requestId: requestId,
		handle:    handle,
		decoder:   decoder,
		queue:     queue,
		stop:      stop,
		stats:     stats,
		log:       log,
	}
}

// Run loops until the partition is exhausted, a fetch or decode fails, the
// stop signal is raised or ctx is cancelled. Only a failure is returned.
func (f *Feed) Run(ctx context.Context) error {
	partn := f.handle.PartitionId()
	f.log.Debugf("feed %v started", partn)

	for {
		if f.stop.Stopped() || ctx.Err() != nil {
			f.log.Debugf("feed %v stopped", partn)
			f.finish(doneMessage())
			return nil
		}

		begin := time.Now()
		var res BatchResult
		select {
		case res = <-f.handle.FetchNextBatch(ctx):
		case <-ctx.Done():
			f.finish(doneMessage())
			return nil
		}

		if res.Err != nil {
			return f.fail(&ScanFailure{RequestId: f.requestId, Partition: partn, Cause: res.Err})
		}
		batch := res.Batch
		if batch == nil {
			batch = &Batch{Last: true}
		}
		f.stats.addFetch(len(batch.Rows), time.Since(begin))
		f.log.Tracef("feed %v fetched %v rows last %v", partn, len(batch.Rows), batch.Last)

		for _, raw := range batch.Rows {
			row, err := f.decoder.Decode(raw)
			if err != nil {
				return f.fail(&ScanFailure{RequestId: f.requestId, Partition: partn, Decode: true, Cause: err})
			}
			if !f.queue.Enqueue(rowMessage(row), f.stop.Done()) {
				f.log.Debugf("feed %v stopped while pushing", partn)
				f.finish(doneMessage())
				return nil
			}
		}

		if batch.Last {
			f.log.Debugf("feed %v exhausted", partn)
			f.finish(doneMessage())
			return nil
		}
	}
}

// fail publishes the failure before raising stop, so a consumer that sees
// the signal can still find the Error message.
func (f *Feed) fail(err *ScanFailure) error {
	f.log.Errorf("%v", err)
	f.stats.addFailure()
	f.finish(errorMessage(err))
	f.stop.Stop()
	return err
}

func (f *Feed) finish(msg Message) {
	f.queue.Enqueue(msg, nil)
}
