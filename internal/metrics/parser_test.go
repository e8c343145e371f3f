package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleExposition = `# HELP vllm:request_prefill_time_seconds Histogram of prefill time per request.
# TYPE vllm:request_prefill_time_seconds histogram
vllm:request_prefill_time_seconds_bucket{model_name="llama",le="1.0"} 3
vllm:request_prefill_time_seconds_bucket{model_name="llama",le="+Inf"} 4
vllm:request_prefill_time_seconds_sum{model_name="llama"} 10.5
vllm:request_prefill_time_seconds_count{model_name="llama"} 4
# HELP vllm:time_to_first_token_seconds Histogram of TTFT.
# TYPE vllm:time_to_first_token_seconds histogram
vllm:time_to_first_token_seconds_bucket{model_name="llama",le="+Inf"} 4
vllm:time_to_first_token_seconds_sum{model_name="llama"} 2.5
vllm:time_to_first_token_seconds_count{model_name="llama"} 4
# HELP vllm:num_requests_running Number of requests currently running.
# TYPE vllm:num_requests_running gauge
vllm:num_requests_running{model_name="llama"} 1
# HELP vllm:prompt_tokens_total Total prompt tokens processed.
# TYPE vllm:prompt_tokens_total counter
vllm:prompt_tokens_total{model_name="llama"} 1234
`

func TestParseSnapshot(t *testing.T) {
	capturedAt := time.Now()

	snapshot, err := ParseSnapshot(strings.NewReader(sampleExposition), capturedAt)
	require.NoError(t, err)
	require.NotNil(t, snapshot)

	assert.Equal(t, capturedAt, snapshot.Timestamp)

	c, ok := snapshot.Counter(MetricPrefillTime)
	require.True(t, ok)
	assert.Equal(t, 10.5, c.Sum)
	assert.Equal(t, 4.0, c.Count)

	c, ok = snapshot.Counter(MetricTimeToFirstToken)
	require.True(t, ok)
	assert.Equal(t, 2.5, c.Sum)

	running, ok := snapshot.Gauge(GaugeRequestsRunning)
	require.True(t, ok)
	assert.Equal(t, 1.0, running)

	tokens, ok := snapshot.Gauge(CounterPromptTokens)
	require.True(t, ok)
	assert.Equal(t, 1234.0, tokens)
}

func TestParseSnapshotMissingMetricIsAbsent(t *testing.T) {
	snapshot, err := ParseSnapshot(strings.NewReader(sampleExposition), time.Now())
	require.NoError(t, err)

	_, ok := snapshot.Counter(MetricDecodeTime)
	assert.False(t, ok)
}

func TestParseSnapshotSumsLabelSets(t *testing.T) {
	exposition := `# TYPE vllm:request_decode_time_seconds histogram
vllm:request_decode_time_seconds_bucket{model_name="a",le="+Inf"} 2
vllm:request_decode_time_seconds_sum{model_name="a"} 4
vllm:request_decode_time_seconds_count{model_name="a"} 2
vllm:request_decode_time_seconds_bucket{model_name="b",le="+Inf"} 1
vllm:request_decode_time_seconds_sum{model_name="b"} 3
vllm:request_decode_time_seconds_count{model_name="b"} 1
`

	snapshot, err := ParseSnapshot(strings.NewReader(exposition), time.Now())
	require.NoError(t, err)

	c, ok := snapshot.Counter(MetricDecodeTime)
	require.True(t, ok)
	assert.Equal(t, 7.0, c.Sum)
	assert.Equal(t, 3.0, c.Count)
}

func TestParseSnapshotInvalidText(t *testing.T) {
	_, err := ParseSnapshot(strings.NewReader("{{{not metrics"), time.Now())
	assert.Error(t, err)
}
