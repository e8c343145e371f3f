package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func snapshotWith(counters map[string]Counter) *Snapshot {
	return &Snapshot{
		Timestamp: time.Now(),
		Counters:  counters,
		Gauges:    map[string]float64{},
	}
}

func TestDelta(t *testing.T) {
	t.Run("when exactly one observation occurred", func(t *testing.T) {
		before := snapshotWith(map[string]Counter{
			MetricPrefillTime: {Sum: 10.5, Count: 4},
		})
		after := snapshotWith(map[string]Counter{
			MetricPrefillTime: {Sum: 13.25, Count: 5},
		})

		v, ok := Delta(before, after, MetricPrefillTime)
		assert.True(t, ok)
		assert.Equal(t, 2.75, v)
	})

	t.Run("when multiple observations occurred", func(t *testing.T) {
		before := snapshotWith(map[string]Counter{
			MetricDecodeTime: {Sum: 100, Count: 10},
		})
		after := snapshotWith(map[string]Counter{
			MetricDecodeTime: {Sum: 106, Count: 13},
		})

		v, ok := Delta(before, after, MetricDecodeTime)
		assert.True(t, ok)
		assert.Equal(t, 2.0, v)
	})

	t.Run("when no observation occurred", func(t *testing.T) {
		before := snapshotWith(map[string]Counter{
			MetricDecodeTime: {Sum: 100, Count: 10},
		})
		after := snapshotWith(map[string]Counter{
			MetricDecodeTime: {Sum: 100, Count: 10},
		})

		_, ok := Delta(before, after, MetricDecodeTime)
		assert.False(t, ok)
	})

	t.Run("when the counter moved backwards", func(t *testing.T) {
		before := snapshotWith(map[string]Counter{
			MetricDecodeTime: {Sum: 100, Count: 10},
		})
		after := snapshotWith(map[string]Counter{
			MetricDecodeTime: {Sum: 2, Count: 1},
		})

		_, ok := Delta(before, after, MetricDecodeTime)
		assert.False(t, ok)
	})

	t.Run("when the metric is missing from a snapshot", func(t *testing.T) {
		before := snapshotWith(map[string]Counter{})
		after := snapshotWith(map[string]Counter{
			MetricDecodeTime: {Sum: 10, Count: 1},
		})

		_, ok := Delta(before, after, MetricDecodeTime)
		assert.False(t, ok)

		_, ok = Delta(after, after, MetricPrefillTime)
		assert.False(t, ok)
	})

	t.Run("when a snapshot is nil", func(t *testing.T) {
		after := snapshotWith(map[string]Counter{
			MetricDecodeTime: {Sum: 10, Count: 1},
		})

		_, ok := Delta(nil, after, MetricDecodeTime)
		assert.False(t, ok)
	})
}

func TestDeltas(t *testing.T) {
	before := snapshotWith(map[string]Counter{
		MetricPrefillTime: {Sum: 10, Count: 4},
		MetricDecodeTime:  {Sum: 50, Count: 4},
	})
	after := snapshotWith(map[string]Counter{
		MetricPrefillTime:      {Sum: 12, Count: 5},
		MetricDecodeTime:       {Sum: 50, Count: 4},
		MetricTimeToFirstToken: {Sum: 1, Count: 1},
	})

	deltas := Deltas(before, after, []string{MetricPrefillTime, MetricDecodeTime, MetricTimeToFirstToken})

	// absent metrics are omitted, not zeroed, and do not fail the others
	assert.Equal(t, map[string]float64{
		MetricPrefillTime: 2.0,
	}, deltas)
}
