package matcher

import (
	"sync"
	"time"

	"github.com/reqlens/reqlens/internal/lifecycle"
	"github.com/reqlens/reqlens/internal/stat"
	"github.com/reqlens/reqlens/internal/telemetry"
)

const (
	// DefaultTolerance is the window for per request matching.
	DefaultTolerance = 5 * time.Second
	// SessionTolerance is the looser window for matching against a whole
	// session when per request timestamps are coarse.
	SessionTolerance = 30 * time.Second
)

// Match pairs a stats record with the interval it most likely describes.
// Confidence is the absolute difference between the record timestamp and the
// interval end; smaller is better.
type Match struct {
	Record     *stat.Record
	Interval   *lifecycle.Interval
	Confidence time.Duration
}

// Result is the outcome of a batch reconciliation. Unmatched records and
// leftover intervals are reported, never dropped.
type Result struct {
	Matches            []*Match
	UnmatchedRecords   []*stat.Record
	UnmatchedIntervals []*lifecycle.Interval
}

// Matcher joins finalized stats records against completed request intervals
// by nearest end timestamp within a tolerance window. Matching is greedy
// nearest neighbor: completions and stat records are emitted in matching
// order in steady operation, so a globally optimal assignment is not worth
// its cost here. Each interval is consumed by at most one record.
type Matcher struct {
	tolerance time.Duration

	lock sync.Mutex
	pool []*lifecycle.Interval
}

func NewMatcher(tolerance time.Duration) *Matcher {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	return &Matcher{
		tolerance: tolerance,
	}
}

// AddInterval adds a completed interval to the candidate pool. Pending and
// aborted intervals are not candidates and are ignored.
func (m *Matcher) AddInterval(interval *lifecycle.Interval) {
	if interval == nil || interval.Status != lifecycle.StatusCompleted {
		return
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	m.pool = append(m.pool, interval)
}

// MatchRecord joins one record against the pool, consuming the winner. The
// candidate set is every interval whose end lies within
// [interval.Start, interval.End + tolerance] of the record timestamp; the
// smallest |t_s - end| wins, equal differences broken by earliest start so
// the outcome does not depend on pool order.
func (m *Matcher) MatchRecord(record *stat.Record) (*Match, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()

	best := -1
	var bestDiff time.Duration

	for i, interval := range m.pool {
		if record.Timestamp.Before(interval.Start) {
			continue
		}

		if record.Timestamp.After(interval.End.Add(m.tolerance)) {
			continue
		}

		diff := record.Timestamp.Sub(interval.End)
		if diff < 0 {
			diff = -diff
		}

		if best == -1 || diff < bestDiff || (diff == bestDiff && interval.Start.Before(m.pool[best].Start)) {
			best = i
			bestDiff = diff
		}
	}

	if best == -1 {
		telemetry.Incr("matcher.unmatched_record", nil, 1)
		return nil, false
	}

	interval := m.pool[best]
	m.pool = append(m.pool[:best], m.pool[best+1:]...)

	return &Match{
		Record:     record,
		Interval:   interval,
		Confidence: bestDiff,
	}, true
}

// Remaining returns the intervals no record has consumed yet.
func (m *Matcher) Remaining() []*lifecycle.Interval {
	m.lock.Lock()
	defer m.lock.Unlock()

	return append([]*lifecycle.Interval{}, m.pool...)
}

// MatchAll runs a batch reconciliation of records against completed
// intervals.
func MatchAll(records []*stat.Record, intervals []*lifecycle.Interval, tolerance time.Duration) *Result {
	m := NewMatcher(tolerance)
	for _, interval := range intervals {
		m.AddInterval(interval)
	}

	result := &Result{}
	for _, record := range records {
		match, ok := m.MatchRecord(record)
		if !ok {
			result.UnmatchedRecords = append(result.UnmatchedRecords, record)
			continue
		}

		result.Matches = append(result.Matches, match)
	}

	result.UnmatchedIntervals = m.Remaining()
	return result
}
