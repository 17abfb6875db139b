package merge

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/couchbase/scanmerge/secondary/common"
)

var errFetch = errors.New("partition unavailable")

// fakeHandle serves a fixed list of keys in batches. Raw rows are an 8
// byte order preserving key followed by the partition id.
type fakeHandle struct {
	mu        sync.Mutex
	partn     common.PartitionId
	keys      []int64
	batchSize int
	failAt    int // fetch number that fails, -1 for none
	badRowAt  int // key position that does not decode, -1 for none
	block     bool

	pos      int
	fetches  int
	restarts int
	closed   bool
}

func newFakeHandle(partn int, keys ...int64) *fakeHandle {
	return &fakeHandle{
		partn:     common.PartitionId(partn),
		keys:      keys,
		batchSize: 2,
		failAt:    -1,
		badRowAt:  -1,
	}
}

func (h *fakeHandle) PartitionId() common.PartitionId {
	return h.partn
}

func (h *fakeHandle) FetchNextBatch(ctx context.Context) <-chan BatchResult {
	ch := make(chan BatchResult, 1)
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.block {
		return ch
	}
	h.fetches++
	if h.failAt == h.fetches {
		ch <- BatchResult{Err: errFetch}
		return ch
	}

	end := h.pos + h.batchSize
	if end > len(h.keys) {
		end = len(h.keys)
	}
	batch := &Batch{}
	for i := h.pos; i < end; i++ {
		if i == h.badRowAt {
			batch.Rows = append(batch.Rows, RawRow("bad"))
			continue
		}
		batch.Rows = append(batch.Rows, encodeTestRow(h.keys[i], h.partn))
	}
	h.pos = end
	batch.Last = h.pos >= len(h.keys)
	ch <- BatchResult{Batch: batch}
	return ch
}

func (h *fakeHandle) Restart() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pos, h.fetches = 0, 0
	h.restarts++
	return nil
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

func (h *fakeHandle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// plainHandle cannot be restarted.
type plainHandle struct {
	h *fakeHandle
}

func (p plainHandle) PartitionId() common.PartitionId { return p.h.PartitionId() }
func (p plainHandle) Close() error { return p.h.Close() }

func (p plainHandle) FetchNextBatch(ctx context.Context) <-chan BatchResult {
	return p.h.FetchNextBatch(ctx)
}

func encodeTestRow(key int64, partn common.PartitionId) RawRow {
	raw := make([]byte, 9)
	binary.BigEndian.PutUint64(raw, uint64(key)^(1<<63))
	raw[8] = byte(partn)
	return raw
}

var testDecoder = DecoderFunc(func(raw RawRow) (Row, error) {
	if len(raw) != 9 {
		return Row{}, fmt.Errorf("malformed row %q", raw)
	}
	key := int64(binary.BigEndian.Uint64(raw[:8]) ^ (1 << 63))
	return Row{
		Values: []interface{}{key, int(raw[8])},
		Key:    SortKey{raw[:8]},
	}, nil
})

func testConfig() common.Config {
	config := common.SystemConfig.Clone()
	config.SetValue("queryport.merge.scan.queue_size", 2)
	config.SetValue("queryport.merge.scan.poll_timeout", 10)
	return config
}

func handles(hs ...*fakeHandle) []ScanHandle {
	out := make([]ScanHandle, len(hs))
	for i, h := range hs {
		out[i] = h
	}
	return out
}

func startMerger(t *testing.T, hs []ScanHandle, opts Options) *StreamMerger {
	t.Helper()
	if opts.Config == nil {
		opts.Config = testConfig()
	}
	m, err := NewStreamMerger(hs, testDecoder, opts)
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { m.Close() })
	return m
}

func collectKeys(t *testing.T, m *StreamMerger) []int64 {
	t.Helper()
	var keys []int64
	for {
		ok, err := m.Advance()
		require.NoError(t, err)
		if !ok {
			return keys
		}
		keys = append(keys, m.Current().Values[0].(int64))
	}
}
