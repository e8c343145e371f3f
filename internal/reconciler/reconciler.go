package reconciler

import (
	"sort"
	"sync"
	"time"

	"github.com/reqlens/reqlens/internal/lifecycle"
	"github.com/reqlens/reqlens/internal/matcher"
	"github.com/reqlens/reqlens/internal/metrics"
	"github.com/reqlens/reqlens/internal/stat"
	"github.com/reqlens/reqlens/internal/telemetry"
	"github.com/reqlens/reqlens/internal/util"
	"go.uber.org/zap"
)

// SnapshotProvider is the slice of the snapshot cache the reconciler needs.
type SnapshotProvider interface {
	Get(maxAge time.Duration, attemptFresh bool, timeout time.Duration) (*metrics.Snapshot, error)
}

// MatchedRequest is the reconciled view of one request: its observed
// interval, the backend's finalized stats when one matched, the counter
// deltas captured around its lifetime, and the reduced cache hit rate.
type MatchedRequest struct {
	Id              string             `json:"id"`
	RequestId       string             `json:"request_id"`
	SessionId       string             `json:"session_id"`
	RequestNum      int                `json:"request_num"`
	Status          lifecycle.Status   `json:"status"`
	Start           time.Time          `json:"start"`
	End             time.Time          `json:"end"`
	Stats           *stat.Record       `json:"stats,omitempty"`
	Matched         bool               `json:"matched"`
	Confidence      float64            `json:"confidence_seconds"`
	Deltas          map[string]float64 `json:"deltas,omitempty"`
	CacheHitRate    float64            `json:"cache_hit_rate"`
	HasCacheHitRate bool               `json:"has_cache_hit_rate"`
	CreatedAt       int64              `json:"created_at"`
}

// Report is the output of one reconciliation pass.
type Report struct {
	Requests           []*MatchedRequest    `json:"requests"`
	UnmatchedRecords   []*stat.Record       `json:"unmatched_records"`
	UnmatchedIntervals int                  `json:"unmatched_intervals"`
	Sessions           []*lifecycle.Session `json:"sessions"`
}

// Reconciler drives the engine: it feeds lifecycle events into the tracker,
// captures counter snapshots at request boundaries, derives deltas, reduces
// gauge samples, and joins finalized stats records to intervals. Event and
// record ingestion never blocks on snapshot fetches longer than the
// configured bound and never raises; failures degrade to absent deltas.
type Reconciler struct {
	tracker   *lifecycle.Tracker
	samples   *lifecycle.SampleAggregator
	snapshots SnapshotProvider
	matcher   *matcher.Matcher
	log       *zap.Logger

	maxAge           time.Duration
	fetchTimeout     time.Duration
	sessionTolerance time.Duration

	lock     sync.Mutex
	before   map[string]*metrics.Snapshot
	deltas   map[string]map[string]float64
	hitRates map[string]float64

	matches          []*matcher.Match
	unmatchedRecords []*stat.Record
}

func New(tracker *lifecycle.Tracker, samples *lifecycle.SampleAggregator, snapshots SnapshotProvider, m *matcher.Matcher, log *zap.Logger, maxAge time.Duration, fetchTimeout time.Duration, sessionTolerance time.Duration) *Reconciler {
	return &Reconciler{
		tracker:          tracker,
		samples:          samples,
		snapshots:        snapshots,
		matcher:          m,
		log:              log,
		maxAge:           maxAge,
		fetchTimeout:     fetchTimeout,
		sessionTolerance: sessionTolerance,
		before:           map[string]*metrics.Snapshot{},
		deltas:           map[string]map[string]float64{},
		hitRates:         map[string]float64{},
	}
}

// OnEvent applies one lifecycle event. A received event captures the
// "before" snapshot; a terminal event captures the "after" snapshot and
// derives the deltas attributable to the request.
func (r *Reconciler) OnEvent(e lifecycle.Event) {
	interval, changed := r.tracker.Observe(e)
	if !changed {
		return
	}

	switch e.Kind {
	case lifecycle.EventReceived:
		r.captureBefore(interval.RequestId)
	case lifecycle.EventCompleted:
		r.captureAfter(interval)
		r.matcher.AddInterval(interval)
	case lifecycle.EventAborted:
		r.discard(interval.RequestId)
	}
}

// OnSample forwards a gauge reading to the aggregator.
func (r *Reconciler) OnSample(s lifecycle.Sample) {
	r.samples.Observe(s)
}

// OnRecord joins one finalized stats record against the completed intervals.
func (r *Reconciler) OnRecord(record *stat.Record) {
	match, ok := r.matcher.MatchRecord(record)

	r.lock.Lock()
	defer r.lock.Unlock()

	if !ok {
		r.unmatchedRecords = append(r.unmatchedRecords, record)
		return
	}

	telemetry.Incr("reconciler.matched", nil, 1)
	r.matches = append(r.matches, match)
}

func (r *Reconciler) captureBefore(requestId string) {
	snapshot, err := r.snapshots.Get(r.maxAge, true, r.fetchTimeout)
	if err != nil {
		telemetry.Incr("reconciler.before_snapshot_unavailable", nil, 1)
		r.log.Sugar().Warnf("no before snapshot for request %s: %v", requestId, err)
		return
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	r.before[requestId] = snapshot
}

func (r *Reconciler) captureAfter(interval *lifecycle.Interval) {
	// force a fresh read; the cached snapshot predates the counter updates
	// this request just made
	after, err := r.snapshots.Get(0, true, r.fetchTimeout)
	if err != nil {
		telemetry.Incr("reconciler.after_snapshot_unavailable", nil, 1)
		r.log.Sugar().Warnf("no after snapshot for request %s: %v", interval.RequestId, err)
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	before := r.before[interval.RequestId]
	delete(r.before, interval.RequestId)

	if before != nil && after != nil {
		deltas := metrics.Deltas(before, after, metrics.TimingMetrics)
		if len(deltas) > 0 {
			r.deltas[interval.RequestId] = deltas
		}
	}

	if hitRate, ok := r.samples.Reduce(interval.RequestId); ok {
		r.hitRates[interval.RequestId] = hitRate
	}
}

func (r *Reconciler) discard(requestId string) {
	r.lock.Lock()
	defer r.lock.Unlock()

	delete(r.before, requestId)

	// aborted requests keep their reduced samples for the report
	if hitRate, ok := r.samples.Reduce(requestId); ok {
		r.hitRates[requestId] = hitRate
	}
}

// Report assembles the reconciled records: matched requests first, then
// completed intervals no stats record claimed, then aborted requests. Records
// the strict pass left unmatched get one retry against the leftover intervals
// under the looser session tolerance; both passes work on copies, so calling
// Report repeatedly is safe.
func (r *Reconciler) Report() *Report {
	r.lock.Lock()
	defer r.lock.Unlock()

	secondPass := matcher.MatchAll(r.unmatchedRecords, r.matcher.Remaining(), r.sessionTolerance)

	report := &Report{
		UnmatchedRecords: append([]*stat.Record{}, secondPass.UnmatchedRecords...),
		Sessions:         r.tracker.Sessions(),
	}

	for _, match := range r.matches {
		report.Requests = append(report.Requests, r.buildRequest(match.Interval, match.Record, match.Confidence.Seconds(), true))
	}

	for _, match := range secondPass.Matches {
		telemetry.Incr("reconciler.matched_loose", nil, 1)
		report.Requests = append(report.Requests, r.buildRequest(match.Interval, match.Record, match.Confidence.Seconds(), true))
	}

	for _, interval := range secondPass.UnmatchedIntervals {
		report.Requests = append(report.Requests, r.buildRequest(interval, nil, 0, false))
		report.UnmatchedIntervals++
	}

	for _, interval := range r.tracker.Intervals() {
		if interval.Status == lifecycle.StatusAborted {
			report.Requests = append(report.Requests, r.buildRequest(interval, nil, 0, false))
		}
	}

	sort.Slice(report.Requests, func(i, j int) bool {
		return report.Requests[i].Start.Before(report.Requests[j].Start)
	})

	return report
}

func (r *Reconciler) buildRequest(interval *lifecycle.Interval, record *stat.Record, confidence float64, matched bool) *MatchedRequest {
	return &MatchedRequest{
		Id:              util.NewUuid(),
		RequestId:       interval.RequestId,
		SessionId:       interval.SessionId,
		RequestNum:      interval.RequestNum,
		Status:          interval.Status,
		Start:           interval.Start,
		End:             interval.End,
		Stats:           record,
		Matched:         matched,
		Confidence:      confidence,
		Deltas:          r.deltas[interval.RequestId],
		CacheHitRate:    r.hitRates[interval.RequestId],
		HasCacheHitRate: hasKey(r.hitRates, interval.RequestId),
		CreatedAt:       time.Now().Unix(),
	}
}

func hasKey(m map[string]float64, key string) bool {
	_, ok := m[key]
	return ok
}
