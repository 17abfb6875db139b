// Copyright 2014-Present Couchbase, Inc.
//
// Use of this software is governed by the Business Source License included
// in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
// in that file, in accordance with the Business Source License, use of this
// software will be governed by the Apache License, Version 2.0, included in
// the file licenses/APL2.txt.

package merge

import "errors"
import "fmt"

import "github.com/couchbase/scanmerge/secondary/common"

// ErrConfiguration is returned synchronously by NewStreamMerger for an
// invalid combination of options. No scan has been touched.
var ErrConfiguration = errors.New("queryport.merge.configuration")

// ErrMisuse reports an operation the merger does not support in its
// current mode or state. The merger state is left untouched.
var ErrMisuse = errors.New("queryport.merge.misuse")

// ErrScanFailed matches every ScanFailure with errors.Is.
var ErrScanFailed = errors.New("queryport.merge.scanFailed")

var (
	ErrGroupByUnsorted  = fmt.Errorf("%w: sorted group by requires a sorted merge", ErrConfiguration)
	ErrNegativeKeyIndex = fmt.Errorf("%w: negative descending key index", ErrConfiguration)
	ErrResetUnsupported = fmt.Errorf("%w: cannot reset an unsorted stream", ErrMisuse)
	ErrNotStarted       = fmt.Errorf("%w: merger not started", ErrMisuse)
	ErrAlreadyStarted   = fmt.Errorf("%w: merger already started", ErrMisuse)
	ErrStopped          = fmt.Errorf("%w: merger stopped", ErrMisuse)
	ErrClosed           = fmt.Errorf("%w: merger closed", ErrMisuse)
	ErrNotRestartable   = fmt.Errorf("%w: scan handle cannot be restarted", ErrMisuse)
)

// ScanFailure is the single failure surfaced for a query when a partition
// fetch or the decoding of a fetched row fails. It is never retried here.
type ScanFailure struct {
	RequestId string
	Partition common.PartitionId
	Decode    bool
	Cause     error
}

func (e *ScanFailure) Error() string {
	what := "fetch"
	if e.Decode {
		what = "decode"
	}
	return fmt.Sprintf("A scanner failed, failing whole query: requestId %v %v %v: %v",
		e.RequestId, e.Partition, what, e.Cause)
}

func (e *ScanFailure) Unwrap() error {
	return e.Cause
}

func (e *ScanFailure) Is(target error) bool {
	return target == ErrScanFailed
}
