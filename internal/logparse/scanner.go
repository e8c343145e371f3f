package logparse

import (
	"bufio"
	"io"
	"time"

	"github.com/reqlens/reqlens/internal/lifecycle"
)

// Sink receives the typed stream recovered from a raw log.
type Sink interface {
	OnEvent(e lifecycle.Event)
	OnSample(s lifecycle.Sample)
}

// Scan replays a backend log through the sink line by line. The prefix cache
// hit rate is the gauge forwarded as samples. It returns how many lines
// produced events or samples and how many were passed over.
func Scan(r io.Reader, sink Sink) (consumed int, skipped int, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	last := time.Time{}
	for scanner.Scan() {
		parsed := ParseLine(scanner.Text(), last)
		last = parsed.Timestamp

		switch parsed.Kind {
		case LineReceived:
			sink.OnEvent(lifecycle.Event{
				Kind:      lifecycle.EventReceived,
				RequestId: parsed.RequestId,
				Timestamp: parsed.Timestamp,
				Step:      parsed.Step,
				MaxSteps:  parsed.MaxSteps,
			})
			consumed++
		case LineGenerated:
			sink.OnEvent(lifecycle.Event{
				Kind:      lifecycle.EventCompleted,
				RequestId: parsed.RequestId,
				Timestamp: parsed.Timestamp,
			})
			consumed++
		case LineAborted:
			sink.OnEvent(lifecycle.Event{
				Kind:      lifecycle.EventAborted,
				RequestId: parsed.RequestId,
				Timestamp: parsed.Timestamp,
			})
			consumed++
		case LineCacheSample:
			sink.OnSample(lifecycle.Sample{
				Timestamp: parsed.Timestamp,
				Value:     parsed.PrefixCacheHitRate,
			})
			consumed++
		default:
			skipped++
		}
	}

	return consumed, skipped, scanner.Err()
}
