package reconciler

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/reqlens/reqlens/internal/lifecycle"
	"github.com/reqlens/reqlens/internal/matcher"
	"github.com/reqlens/reqlens/internal/metrics"
	"github.com/reqlens/reqlens/internal/stat"
)

var base = time.Date(2025, 11, 8, 16, 0, 0, 0, time.UTC)

type fakeSnapshots struct {
	lock  sync.Mutex
	queue []*metrics.Snapshot
	err   error

	maxAges []time.Duration
}

func (f *fakeSnapshots) Get(maxAge time.Duration, attemptFresh bool, timeout time.Duration) (*metrics.Snapshot, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.maxAges = append(f.maxAges, maxAge)

	if f.err != nil {
		return nil, f.err
	}

	if len(f.queue) == 0 {
		return nil, metrics.ErrUnavailable
	}

	snapshot := f.queue[0]
	if len(f.queue) > 1 {
		f.queue = f.queue[1:]
	}

	return snapshot, nil
}

func snapshotAt(at int, counters map[string]metrics.Counter) *metrics.Snapshot {
	return &metrics.Snapshot{
		Timestamp: base.Add(time.Duration(at) * time.Second),
		Counters:  counters,
	}
}

func newTestReconciler(snapshots SnapshotProvider) (*Reconciler, *lifecycle.Tracker) {
	log := zap.NewNop()
	tracker := lifecycle.NewTracker(log, 5*time.Minute)
	samples := lifecycle.NewSampleAggregator(tracker)
	m := matcher.NewMatcher(matcher.DefaultTolerance)

	return New(tracker, samples, snapshots, m, log, 5*time.Second, time.Second, matcher.SessionTolerance), tracker
}

func event(kind lifecycle.EventKind, id string, at int) lifecycle.Event {
	return lifecycle.Event{
		Kind:      kind,
		RequestId: id,
		Timestamp: base.Add(time.Duration(at) * time.Second),
	}
}

func TestReconcilerDeltas(t *testing.T) {
	snapshots := &fakeSnapshots{
		queue: []*metrics.Snapshot{
			snapshotAt(0, map[string]metrics.Counter{
				metrics.MetricPrefillTime: {Sum: 10, Count: 3},
				metrics.MetricDecodeTime:  {Sum: 40, Count: 3},
			}),
			snapshotAt(6, map[string]metrics.Counter{
				metrics.MetricPrefillTime: {Sum: 10.5, Count: 4},
				metrics.MetricDecodeTime:  {Sum: 44, Count: 4},
			}),
		},
	}

	r, _ := newTestReconciler(snapshots)

	r.OnEvent(event(lifecycle.EventReceived, "chatcmpl-1", 0))
	r.OnSample(lifecycle.Sample{Timestamp: base.Add(time.Second), Value: 33})
	r.OnSample(lifecycle.Sample{Timestamp: base.Add(2 * time.Second), Value: 35})
	r.OnEvent(event(lifecycle.EventCompleted, "chatcmpl-1", 5))

	r.OnRecord(&stat.Record{Timestamp: base.Add(6 * time.Second), FinishReason: "stop"})

	report := r.Report()
	require.Len(t, report.Requests, 1)

	request := report.Requests[0]
	assert.True(t, request.Matched)
	assert.Equal(t, "chatcmpl-1", request.RequestId)
	assert.Equal(t, lifecycle.StatusCompleted, request.Status)
	assert.InDelta(t, 0.5, request.Deltas[metrics.MetricPrefillTime], 1e-9)
	assert.InDelta(t, 4.0, request.Deltas[metrics.MetricDecodeTime], 1e-9)
	require.True(t, request.HasCacheHitRate)
	assert.InDelta(t, 34, request.CacheHitRate, 1e-9)
	require.NotNil(t, request.Stats)
	assert.Equal(t, "stop", request.Stats.FinishReason)

	// the after snapshot must be read fresh, not from cache
	assert.Equal(t, []time.Duration{5 * time.Second, 0}, snapshots.maxAges)
}

func TestReconcilerSnapshotUnavailable(t *testing.T) {
	snapshots := &fakeSnapshots{err: errors.New("scrape down")}
	r, _ := newTestReconciler(snapshots)

	r.OnEvent(event(lifecycle.EventReceived, "chatcmpl-1", 0))
	r.OnEvent(event(lifecycle.EventCompleted, "chatcmpl-1", 5))

	report := r.Report()
	require.Len(t, report.Requests, 1)
	assert.Empty(t, report.Requests[0].Deltas)
	assert.Equal(t, lifecycle.StatusCompleted, report.Requests[0].Status)
}

func TestReconcilerAborted(t *testing.T) {
	snapshots := &fakeSnapshots{
		queue: []*metrics.Snapshot{snapshotAt(0, map[string]metrics.Counter{})},
	}
	r, _ := newTestReconciler(snapshots)

	r.OnEvent(event(lifecycle.EventReceived, "chatcmpl-1", 0))
	r.OnSample(lifecycle.Sample{Timestamp: base.Add(time.Second), Value: 20})
	r.OnEvent(event(lifecycle.EventAborted, "chatcmpl-1", 3))

	report := r.Report()
	require.Len(t, report.Requests, 1)

	request := report.Requests[0]
	assert.Equal(t, lifecycle.StatusAborted, request.Status)
	assert.False(t, request.Matched)
	require.True(t, request.HasCacheHitRate)
	assert.InDelta(t, 20, request.CacheHitRate, 1e-9)
}

func TestReconcilerUnmatched(t *testing.T) {
	snapshots := &fakeSnapshots{
		queue: []*metrics.Snapshot{snapshotAt(0, map[string]metrics.Counter{})},
	}
	r, _ := newTestReconciler(snapshots)

	r.OnEvent(event(lifecycle.EventReceived, "chatcmpl-1", 0))
	r.OnEvent(event(lifecycle.EventCompleted, "chatcmpl-1", 5))

	// far outside the tolerance window
	r.OnRecord(&stat.Record{Timestamp: base.Add(500 * time.Second), FinishReason: "stop"})

	report := r.Report()
	require.Len(t, report.Requests, 1)
	assert.False(t, report.Requests[0].Matched)
	assert.Equal(t, 1, report.UnmatchedIntervals)
	require.Len(t, report.UnmatchedRecords, 1)
}

func TestReconcilerLooseSecondPass(t *testing.T) {
	snapshots := &fakeSnapshots{
		queue: []*metrics.Snapshot{snapshotAt(0, map[string]metrics.Counter{})},
	}
	r, _ := newTestReconciler(snapshots)

	r.OnEvent(event(lifecycle.EventReceived, "chatcmpl-1", 0))
	r.OnEvent(event(lifecycle.EventCompleted, "chatcmpl-1", 5))

	// outside the strict 5s window, inside the 30s session window
	r.OnRecord(&stat.Record{Timestamp: base.Add(20 * time.Second), FinishReason: "stop"})

	report := r.Report()
	require.Len(t, report.Requests, 1)
	assert.True(t, report.Requests[0].Matched)
	assert.InDelta(t, 15, report.Requests[0].Confidence, 1e-9)
	assert.Empty(t, report.UnmatchedRecords)
	assert.Equal(t, 0, report.UnmatchedIntervals)

	// a second report sees the same outcome
	again := r.Report()
	require.Len(t, again.Requests, 1)
	assert.True(t, again.Requests[0].Matched)
}

func TestReconcilerReportOrdering(t *testing.T) {
	snapshots := &fakeSnapshots{
		queue: []*metrics.Snapshot{snapshotAt(0, map[string]metrics.Counter{})},
	}
	r, _ := newTestReconciler(snapshots)

	r.OnEvent(event(lifecycle.EventReceived, "chatcmpl-2", 10))
	r.OnEvent(event(lifecycle.EventCompleted, "chatcmpl-2", 15))
	r.OnEvent(event(lifecycle.EventReceived, "chatcmpl-1", 20))
	r.OnEvent(event(lifecycle.EventAborted, "chatcmpl-1", 22))

	report := r.Report()
	require.Len(t, report.Requests, 2)
	assert.Equal(t, "chatcmpl-2", report.Requests[0].RequestId)
	assert.Equal(t, "chatcmpl-1", report.Requests[1].RequestId)
	require.Len(t, report.Sessions, 1)
}
