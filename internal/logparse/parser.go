package logparse

import (
	"regexp"
	"strconv"
	"time"
)

// Line regexes mirror the backend's log format: chat completion ids, the
// agent's step counter, and the engine's periodic cache stats line.
var (
	receivedRe  = regexp.MustCompile(`Received request (chatcmpl-[a-f0-9]+)`)
	generatedRe = regexp.MustCompile(`Generated response (chatcmpl-[a-f0-9]+)`)
	abortedRe   = regexp.MustCompile(`Aborted request\(s\) (chatcmpl-[a-f0-9]+)`)
	stepInfoRe  = regexp.MustCompile(`<step_info>Step(\d+)\s+maximum:(\d+)`)
	kvCacheRe   = regexp.MustCompile(`GPU KV cache usage: ([\d.]+)%, Prefix cache hit rate: ([\d.]+)%`)
	timestampRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2}(?:\.\d+)?)`)
)

type LineKind string

const (
	LineReceived    LineKind = "received"
	LineGenerated   LineKind = "generated"
	LineAborted     LineKind = "aborted"
	LineCacheSample LineKind = "cache_sample"
	LineOther       LineKind = "other"
)

// ParsedLine is the typed result of one log line. Fields are populated per
// kind: RequestId for lifecycle lines, KVCacheUsage/PrefixCacheHitRate for
// cache sample lines, Step/MaxSteps when the line carried step info.
type ParsedLine struct {
	Kind               LineKind
	Timestamp          time.Time
	RequestId          string
	Step               int
	MaxSteps           int
	KVCacheUsage       float64
	PrefixCacheHitRate float64
}

// ParseLine classifies one backend log line. fallback is used when the line
// carries no timestamp of its own, so callers replaying a file can substitute
// arrival time. Lines that match nothing come back as LineOther.
func ParseLine(line string, fallback time.Time) *ParsedLine {
	parsed := &ParsedLine{
		Kind:      LineOther,
		Timestamp: fallback,
	}

	if m := timestampRe.FindStringSubmatch(line); m != nil {
		if ts, err := parseTimestamp(m[1]); err == nil {
			parsed.Timestamp = ts
		}
	}

	if m := stepInfoRe.FindStringSubmatch(line); m != nil {
		parsed.Step, _ = strconv.Atoi(m[1])
		parsed.MaxSteps, _ = strconv.Atoi(m[2])
	}

	if m := receivedRe.FindStringSubmatch(line); m != nil {
		parsed.Kind = LineReceived
		parsed.RequestId = m[1]
		return parsed
	}

	if m := generatedRe.FindStringSubmatch(line); m != nil {
		parsed.Kind = LineGenerated
		parsed.RequestId = m[1]
		return parsed
	}

	if m := abortedRe.FindStringSubmatch(line); m != nil {
		parsed.Kind = LineAborted
		parsed.RequestId = m[1]
		return parsed
	}

	if m := kvCacheRe.FindStringSubmatch(line); m != nil {
		parsed.Kind = LineCacheSample
		parsed.KVCacheUsage, _ = strconv.ParseFloat(m[1], 64)
		parsed.PrefixCacheHitRate, _ = strconv.ParseFloat(m[2], 64)
		return parsed
	}

	return parsed
}

func parseTimestamp(raw string) (time.Time, error) {
	layouts := []string{
		"2006-01-02 15:04:05.999999",
		"2006-01-02T15:04:05.999999",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}

	var lastErr error
	for _, layout := range layouts {
		ts, err := time.Parse(layout, raw)
		if err == nil {
			return ts, nil
		}
		lastErr = err
	}

	return time.Time{}, lastErr
}
