package merge

import (
	"fmt"
	"time"

	gometrics "github.com/rcrowley/go-metrics"

	"github.com/couchbase/scanmerge/secondary/stats"
)

// ScanStats collects per query counters. First row latency and total time
// are recorded once; later attempts are ignored. The process wide
// counterparts are published to a go-metrics registry.
type ScanStats struct {
	start time.Time

	firstRowSet  stats.BoolVal
	firstRow     stats.Int64Val
	totalTimeSet stats.BoolVal
	totalTime    stats.Int64Val
	rowCount     stats.Int64Val
	fetchTime    stats.TimingStat

	registry      gometrics.Registry
	rowsMerged    gometrics.Counter
	batches       gometrics.Histogram
	firstRowTimer gometrics.Timer
	totalTimer    gometrics.Timer
	fetchTimer    gometrics.Timer
	failures      gometrics.Counter
}

// NewScanStats starts the clock now. A nil registry gets a private one.
func NewScanStats(registry gometrics.Registry) *ScanStats {
	if registry == nil {
		registry = gometrics.NewRegistry()
	}
	s := &ScanStats{
		start:    time.Now(),
		registry: registry,

		rowsMerged: gometrics.GetOrRegisterCounter("merge.rows_merged", registry),
		batches: gometrics.GetOrRegisterHistogram("merge.batch_rows", registry,
			gometrics.NewExpDecaySample(1028, 0.015)),
		firstRowTimer: gometrics.GetOrRegisterTimer("merge.first_row", registry),
		totalTimer:    gometrics.GetOrRegisterTimer("merge.total_time", registry),
		fetchTimer:    gometrics.GetOrRegisterTimer("merge.fetch_time", registry),
		failures:      gometrics.GetOrRegisterCounter("merge.scan_failures", registry),
	}
	s.firstRowSet.Init()
	s.firstRow.Init()
	s.totalTimeSet.Init()
	s.totalTime.Init()
	s.rowCount.Init()
	s.fetchTime.Init()
	return s
}

// SetFirstRow records the time to the first merged row.
func (s *ScanStats) SetFirstRow() {
	if s.firstRowSet.Set() {
		elapsed := time.Since(s.start)
		s.firstRow.Set(int64(elapsed))
		s.firstRowTimer.Update(elapsed)
	}
}

// SetTotalTime records the time until the merge completed.
func (s *ScanStats) SetTotalTime() {
	if s.totalTimeSet.Set() {
		elapsed := time.Since(s.start)
		s.totalTime.Set(int64(elapsed))
		s.totalTimer.Update(elapsed)
	}
}

func (s *ScanStats) IncrementRowCount(n int64) {
	s.rowCount.Add(n)
	s.rowsMerged.Inc(n)
}

func (s *ScanStats) addFetch(rows int, dur time.Duration) {
	s.fetchTime.Put(dur)
	s.fetchTimer.Update(dur)
	s.batches.Update(int64(rows))
}

func (s *ScanStats) addFailure() {
	s.failures.Inc(1)
}

// FirstRowLatency reports false until a first row was merged.
func (s *ScanStats) FirstRowLatency() (time.Duration, bool) {
	return time.Duration(s.firstRow.Value()), s.firstRowSet.Value()
}

// TotalTime reports false until the merge completed.
func (s *ScanStats) TotalTime() (time.Duration, bool) {
	return time.Duration(s.totalTime.Value()), s.totalTimeSet.Value()
}

func (s *ScanStats) RowCount() int64 {
	return s.rowCount.Value()
}

func (s *ScanStats) FetchCount() int64 {
	return s.fetchTime.Count.Value()
}

func (s *ScanStats) MeanFetchTime() time.Duration {
	return s.fetchTime.Mean()
}

func (s *ScanStats) Registry() gometrics.Registry {
	return s.registry
}

func (s *ScanStats) String() string {
	first, _ := s.FirstRowLatency()
	total, _ := s.TotalTime()
	return fmt.Sprintf("rows=%d firstRow=%v total=%v fetch=%v",
		s.RowCount(), first, total, s.fetchTime.Value())
}
