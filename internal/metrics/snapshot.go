package metrics

import (
	"time"
)

// vLLM metric families the engine knows how to time. Histogram families carry
// the cumulative sum/count pairs the delta derivation works on.
const (
	MetricPrefillTime       = "vllm:request_prefill_time_seconds"
	MetricDecodeTime        = "vllm:request_decode_time_seconds"
	MetricQueueTime         = "vllm:request_queue_time_seconds"
	MetricInferenceTime     = "vllm:request_inference_time_seconds"
	MetricTimeToFirstToken  = "vllm:time_to_first_token_seconds"
	MetricTimePerToken      = "vllm:time_per_output_token_seconds"
	MetricInterTokenLatency = "vllm:inter_token_latency_seconds"
	MetricE2ELatency        = "vllm:e2e_request_latency_seconds"

	GaugeRequestsRunning = "vllm:num_requests_running"
	GaugeRequestsWaiting = "vllm:num_requests_waiting"
	GaugeKVCacheUsage    = "vllm:gpu_cache_usage_perc"

	CounterPromptTokens     = "vllm:prompt_tokens_total"
	CounterGenerationTokens = "vllm:generation_tokens_total"
)

// TimingMetrics lists the families the reconciler derives per request timings from.
var TimingMetrics = []string{
	MetricPrefillTime,
	MetricDecodeTime,
	MetricQueueTime,
	MetricTimeToFirstToken,
	MetricE2ELatency,
}

type Counter struct {
	Sum   float64
	Count float64
}

// Snapshot is a single point in time read of the backend's cumulative
// counters. Immutable once captured.
type Snapshot struct {
	Timestamp time.Time
	Counters  map[string]Counter
	Gauges    map[string]float64
}

func (s *Snapshot) Counter(name string) (Counter, bool) {
	c, ok := s.Counters[name]
	return c, ok
}

func (s *Snapshot) Gauge(name string) (float64, bool) {
	v, ok := s.Gauges[name]
	return v, ok
}

func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.Timestamp)
}
