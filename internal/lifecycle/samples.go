package lifecycle

import (
	"sort"
	"sync"
	"time"

	"github.com/reqlens/reqlens/internal/telemetry"
)

// Sample is one reading of a monitored gauge, e.g. the prefix cache hit rate.
type Sample struct {
	Timestamp time.Time
	Value     float64
}

// SampleAggregator accumulates gauge samples per request. A sample is
// attributed to a request only when that request is the sole pending one at
// sample time; attributing a shared gauge to one of several concurrent
// requests would be a guess. Unattributed samples still land in the session
// wide stream.
type SampleAggregator struct {
	tracker *Tracker

	lock      sync.Mutex
	session   []Sample
	byRequest map[string][]Sample
}

func NewSampleAggregator(tracker *Tracker) *SampleAggregator {
	return &SampleAggregator{
		tracker:   tracker,
		byRequest: map[string][]Sample{},
	}
}

func (a *SampleAggregator) Observe(s Sample) {
	a.lock.Lock()
	defer a.lock.Unlock()

	a.session = append(a.session, s)

	interval, ok := a.tracker.SolePending()
	if !ok {
		telemetry.Incr("lifecycle.samples.unattributed", nil, 1)
		return
	}

	a.byRequest[interval.RequestId] = append(a.byRequest[interval.RequestId], s)
}

// Reduce collapses a request's samples into their median and releases the
// buffer. The median keeps a single stale tick, e.g. right after a cache
// reset, from dominating the unevenly sampled gauge. ok is false when no
// sample was attributed to the request.
func (a *SampleAggregator) Reduce(requestId string) (float64, bool) {
	a.lock.Lock()
	defer a.lock.Unlock()

	samples := a.byRequest[requestId]
	delete(a.byRequest, requestId)

	if len(samples) == 0 {
		return 0, false
	}

	values := make([]float64, 0, len(samples))
	for _, s := range samples {
		values = append(values, s.Value)
	}

	return Median(values), true
}

// Samples returns a request's buffered samples without reducing them.
func (a *SampleAggregator) Samples(requestId string) []Sample {
	a.lock.Lock()
	defer a.lock.Unlock()

	return append([]Sample{}, a.byRequest[requestId]...)
}

// SessionSamples returns every sample observed, attributed or not.
func (a *SampleAggregator) SessionSamples() []Sample {
	a.lock.Lock()
	defer a.lock.Unlock()

	return append([]Sample{}, a.session...)
}

func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := append([]float64{}, values...)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}

	return (sorted[mid-1] + sorted[mid]) / 2
}
