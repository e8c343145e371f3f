package metrics

import (
	"math"
)

// countTolerance absorbs float error in exposition counts when deciding
// whether exactly one observation landed between two snapshots.
const countTolerance = 1e-6

// Delta derives a per-observation value for one metric from a before/after
// snapshot pair. The second return is false when no value can be derived:
// the metric is missing from either snapshot, no new observation occurred,
// or the counters moved backwards (backend restart or reordered snapshots).
//
// With exactly one new observation the sum delta is that observation's value.
// With several, the average per observation is returned as a lower fidelity
// estimate.
func Delta(before *Snapshot, after *Snapshot, name string) (float64, bool) {
	if before == nil || after == nil {
		return 0, false
	}

	b, ok := before.Counter(name)
	if !ok {
		return 0, false
	}

	a, ok := after.Counter(name)
	if !ok {
		return 0, false
	}

	dc := a.Count - b.Count
	ds := a.Sum - b.Sum

	if dc <= 0 || ds < 0 {
		return 0, false
	}

	if math.Abs(dc-1) <= countTolerance {
		return ds, true
	}

	return ds / dc, true
}

// Deltas applies Delta independently per metric. Metrics with no derivable
// value are omitted rather than failing the whole set.
func Deltas(before *Snapshot, after *Snapshot, names []string) map[string]float64 {
	out := map[string]float64{}

	for _, name := range names {
		if v, ok := Delta(before, after, name); ok {
			out[name] = v
		}
	}

	return out
}
