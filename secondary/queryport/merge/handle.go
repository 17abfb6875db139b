package merge

import (
	"context"

	"github.com/couchbase/scanmerge/secondary/common"
)

// RawRow is one element of a fetched batch, in the storage representation.
type RawRow []byte

// Batch is the unit returned by one fetch. Last marks the end of the
// partition; a Last batch may still carry rows.
type Batch struct {
	Rows []RawRow
	Last bool
}

// BatchResult resolves a fetch. Exactly one of Batch or Err is set.
type BatchResult struct {
	Batch *Batch
	Err   error
}

// ScanHandle is one partition scan, yielding rows in ascending primary key
// order.
//
// FetchNextBatch starts an asynchronous fetch and returns a channel that
// delivers exactly one result. The channel must be buffered so that the
// fetch completes even if nobody receives. A handle never has two fetches
// outstanding; the feed only re-arms after the previous result arrived.
type ScanHandle interface {
	PartitionId() common.PartitionId
	FetchNextBatch(ctx context.Context) <-chan BatchResult
	Close() error
}

// Restartable is implemented by handles that can rewind to the start of
// their partition. Required by StreamMerger.Reset in sorted mode.
type Restartable interface {
	Restart() error
}

// RowDecoder turns a raw batch element into a Row. It must be pure; a
// decode error fails the whole query.
type RowDecoder interface {
	Decode(raw RawRow) (Row, error)
}

// DecoderFunc adapts a function to RowDecoder.
type DecoderFunc func(raw RawRow) (Row, error)

func (f DecoderFunc) Decode(raw RawRow) (Row, error) {
	return f(raw)
}
