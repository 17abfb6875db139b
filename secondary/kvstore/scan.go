package kvstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dgraph-io/badger/v4"

	"github.com/couchbase/scanmerge/secondary/common"
	"github.com/couchbase/scanmerge/secondary/logging"
	"github.com/couchbase/scanmerge/secondary/queryport/merge"
)

// Scanners returns one scan handle per partition of table, in partition
// order. Each fetch reads up to batchSize rows.
func (s *Store) Scanners(table string, batchSize int) ([]merge.ScanHandle, error) {
	if _, err := s.Table(table); err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = 1
	}
	var handles []merge.ScanHandle
	for _, partn := range s.partitions.GetAllPartitionIds() {
		handles = append(handles, &scanHandle{
			store:     s,
			table:     table,
			partn:     partn,
			prefix:    partitionPrefix(table, partn),
			batchSize: batchSize,
		})
	}
	return handles, nil
}

// scanHandle reads one partition in key order, resuming after the last
// key returned. Reads run on the store's worker pool.
type scanHandle struct {
	store     *Store
	table     string
	partn     common.PartitionId
	prefix    []byte
	batchSize int

	mu        sync.Mutex
	inflight  sync.WaitGroup
	pending   bool
	lastKey   []byte
	exhausted bool
	closed    bool
}

func (h *scanHandle) PartitionId() common.PartitionId {
	return h.partn
}

func (h *scanHandle) FetchNextBatch(ctx context.Context) <-chan merge.BatchResult {
	respch := make(chan merge.BatchResult, 1)

	h.mu.Lock()
	switch {
	case h.closed:
		h.mu.Unlock()
		respch <- merge.BatchResult{Err: ErrHandleClosed}
		return respch
	case h.pending:
		h.mu.Unlock()
		respch <- merge.BatchResult{Err: ErrFetchInFlight}
		return respch
	case h.exhausted:
		h.mu.Unlock()
		respch <- merge.BatchResult{Batch: &merge.Batch{Last: true}}
		return respch
	}
	h.pending = true
	h.inflight.Add(1)
	after := h.lastKey
	h.mu.Unlock()

	err := h.store.pool.Submit(func() {
		defer h.inflight.Done()
		batch, lastKey, err := h.fetchRecover(ctx, after)

		h.mu.Lock()
		h.pending = false
		if err == nil {
			if lastKey != nil {
				h.lastKey = lastKey
			}
			h.exhausted = batch.Last
		}
		h.mu.Unlock()
		respch <- merge.BatchResult{Batch: batch, Err: err}
	})
	if err != nil {
		h.mu.Lock()
		h.pending = false
		h.mu.Unlock()
		h.inflight.Done()
		respch <- merge.BatchResult{Err: fmt.Errorf("kvstore: submit fetch: %w", err)}
	}
	return respch
}

// fetchRecover turns a panic during the read into a fetch error, so the
// waiting feed is answered and fails the scan.
func (h *scanHandle) fetchRecover(ctx context.Context, after []byte) (batch *merge.Batch, lastKey []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.Errorf("kvstore: %v %v fetch panic: %v\n%s", h.table, h.partn, r, logging.StackTrace())
			batch, lastKey, err = nil, nil, fmt.Errorf("kvstore: %v fetch panic: %v", h.partn, r)
		}
	}()
	return h.fetchWithRetry(ctx, after)
}

func (h *scanHandle) fetchWithRetry(ctx context.Context, after []byte) (*merge.Batch, []byte, error) {
	var batch *merge.Batch
	var lastKey []byte

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxElapsedTime = h.store.maxElapsed

	op := func() (err error) {
		batch, lastKey, err = h.fetch(after)
		if errors.Is(err, badger.ErrDBClosed) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		logging.Warnf("kvstore: %v %v fetch failed, retrying in %v: %v", h.table, h.partn, wait, err)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, nil, err
	}
	return batch, lastKey, nil
}

func (h *scanHandle) fetch(after []byte) (*merge.Batch, []byte, error) {
	batch := &merge.Batch{}
	var lastKey []byte

	err := h.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = h.prefix
		opts.PrefetchSize = h.batchSize
		it := txn.NewIterator(opts)
		defer it.Close()

		if after == nil {
			it.Seek(h.prefix)
		} else {
			it.Seek(after)
			if it.ValidForPrefix(h.prefix) && bytes.Equal(it.Item().Key(), after) {
				it.Next()
			}
		}

		for ; it.ValidForPrefix(h.prefix) && len(batch.Rows) < h.batchSize; it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			batch.Rows = append(batch.Rows, merge.RawRow(val))
			lastKey = item.KeyCopy(nil)
		}
		batch.Last = !it.ValidForPrefix(h.prefix)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return batch, lastKey, nil
}

// Restart rewinds the handle to the start of its partition once the
// outstanding fetch, if any, has completed.
func (h *scanHandle) Restart() error {
	h.inflight.Wait()
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandleClosed
	}
	h.lastKey, h.exhausted = nil, false
	return nil
}

func (h *scanHandle) Close() error {
	h.inflight.Wait()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}
