package stat

import (
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// Record is one finalized per-request entry from the backend's stats log.
// It arrives only for completed requests and carries the backend's own
// precomputed timing breakdown.
type Record struct {
	Timestamp              time.Time
	FinishReason           string
	E2ELatency             float64
	QueuedTime             float64
	PrefillTime            float64
	DecodeTime             float64
	InferenceTime          float64
	MeanTimePerOutputToken float64
	NumPromptTokens        int
	NumGenerationTokens    int
	MaxTokensParam         int
}

var ErrInvalidRecord = errors.New("invalid stats record")

// ParseLine decodes one JSONL stats line. timestamp and finish_reason are
// required; timing fields default to zero when the backend omitted them so a
// partially populated record is still matchable by its timestamp.
func ParseLine(line string) (*Record, error) {
	if !gjson.Valid(line) {
		return nil, fmt.Errorf("%w: not valid json", ErrInvalidRecord)
	}

	parsed := gjson.Parse(line)

	ts := parsed.Get("timestamp")
	if !ts.Exists() {
		return nil, fmt.Errorf("%w: missing timestamp", ErrInvalidRecord)
	}

	timestamp, err := time.Parse(time.RFC3339Nano, ts.String())
	if err != nil {
		timestamp, err = time.Parse("2006-01-02T15:04:05.999999", ts.String())
		if err != nil {
			return nil, fmt.Errorf("%w: cannot parse timestamp %q", ErrInvalidRecord, ts.String())
		}
	}

	reason := parsed.Get("finish_reason")
	if !reason.Exists() {
		return nil, fmt.Errorf("%w: missing finish_reason", ErrInvalidRecord)
	}

	return &Record{
		Timestamp:              timestamp,
		FinishReason:           reason.String(),
		E2ELatency:             parsed.Get("e2e_latency").Float(),
		QueuedTime:             parsed.Get("queued_time").Float(),
		PrefillTime:            parsed.Get("prefill_time").Float(),
		DecodeTime:             parsed.Get("decode_time").Float(),
		InferenceTime:          parsed.Get("inference_time").Float(),
		MeanTimePerOutputToken: parsed.Get("mean_time_per_output_token").Float(),
		NumPromptTokens:        int(parsed.Get("num_prompt_tokens").Int()),
		NumGenerationTokens:    int(parsed.Get("num_generation_tokens").Int()),
		MaxTokensParam:         int(parsed.Get("max_tokens_param").Int()),
	}, nil
}
