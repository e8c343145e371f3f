package metrics

import (
	"fmt"
	"io"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/multierr"
)

// ParseSnapshot decodes a Prometheus text exposition blob into a Snapshot.
// Histogram and summary families contribute sum/count counters, gauge and
// counter families contribute plain gauge values. Series are summed across
// label sets since the engine only cares about process wide totals.
//
// A family that fails to convert is skipped and reported through the
// returned error; the partially populated snapshot is still usable.
func ParseSnapshot(r io.Reader, capturedAt time.Time) (*Snapshot, error) {
	parser := expfmt.TextParser{}
	families, err := parser.TextToMetricFamilies(r)
	if err != nil {
		return nil, err
	}

	snapshot := &Snapshot{
		Timestamp: capturedAt,
		Counters:  map[string]Counter{},
		Gauges:    map[string]float64{},
	}

	var errs error
	for name, family := range families {
		switch family.GetType() {
		case dto.MetricType_HISTOGRAM:
			c := Counter{}
			for _, m := range family.GetMetric() {
				c.Sum += m.GetHistogram().GetSampleSum()
				c.Count += float64(m.GetHistogram().GetSampleCount())
			}
			snapshot.Counters[name] = c
		case dto.MetricType_SUMMARY:
			c := Counter{}
			for _, m := range family.GetMetric() {
				c.Sum += m.GetSummary().GetSampleSum()
				c.Count += float64(m.GetSummary().GetSampleCount())
			}
			snapshot.Counters[name] = c
		case dto.MetricType_GAUGE:
			var v float64
			for _, m := range family.GetMetric() {
				v += m.GetGauge().GetValue()
			}
			snapshot.Gauges[name] = v
		case dto.MetricType_COUNTER:
			var v float64
			for _, m := range family.GetMetric() {
				v += m.GetCounter().GetValue()
			}
			snapshot.Gauges[name] = v
		default:
			errs = multierr.Append(errs, fmt.Errorf("unsupported metric type %v for family %q", family.GetType(), name))
		}
	}

	return snapshot, errs
}
