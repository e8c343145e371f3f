package lifecycle

import (
	"fmt"
	"sync"
	"time"

	"github.com/reqlens/reqlens/internal/telemetry"
	"go.uber.org/zap"
)

// Tracker turns the ordered lifecycle event stream into request intervals and
// sessions. State transitions happen under one mutex with no I/O held.
type Tracker struct {
	idleTimeout time.Duration
	log         *zap.Logger

	lock     sync.Mutex
	pending  map[string]*Interval
	closed   []*Interval
	sessions []*Session
	current  *Session

	ignoredDuplicates int
	ignoredUnknown    int
}

func NewTracker(log *zap.Logger, idleTimeout time.Duration) *Tracker {
	return &Tracker{
		idleTimeout: idleTimeout,
		log:         log,
		pending:     map[string]*Interval{},
	}
}

// Observe applies one event. It returns the interval the event created or
// closed, and false when the event was ignored (duplicate received, or a
// terminal event for an unknown id).
func (t *Tracker) Observe(e Event) (*Interval, bool) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.maybeRotateSession(e)

	t.current.EventCount++
	t.current.LastEventAt = e.Timestamp

	switch e.Kind {
	case EventReceived:
		if _, exists := t.pending[e.RequestId]; exists {
			t.ignoredDuplicates++
			telemetry.Incr("lifecycle.tracker.duplicate_received", nil, 1)
			t.log.Sugar().Warnf("duplicate received event for request %s ignored", e.RequestId)
			return nil, false
		}

		t.current.RequestCount++
		interval := &Interval{
			RequestId:  e.RequestId,
			RequestNum: t.current.RequestCount,
			Step:       e.Step,
			SessionId:  t.current.Id,
			Start:      e.Timestamp,
			Status:     StatusPending,
		}
		t.pending[e.RequestId] = interval
		return interval, true

	case EventCompleted, EventAborted:
		interval, exists := t.pending[e.RequestId]
		if !exists {
			t.ignoredUnknown++
			telemetry.Incr("lifecycle.tracker.unknown_terminal_event", nil, 1)
			t.log.Sugar().Warnf("%s event for unknown request %s ignored", e.Kind, e.RequestId)
			return nil, false
		}

		interval.End = e.Timestamp
		if e.Kind == EventCompleted {
			interval.Status = StatusCompleted
		} else {
			interval.Status = StatusAborted
		}

		delete(t.pending, e.RequestId)
		t.closed = append(t.closed, interval)
		return interval, true
	}

	return nil, false
}

// maybeRotateSession starts a new session when none exists, the stream has
// been idle past the threshold, or the step counter returned to 1 after at
// least one recorded event. Rotation never touches pending intervals.
func (t *Tracker) maybeRotateSession(e Event) {
	rotate := false

	if t.current == nil {
		rotate = true
	} else if !t.current.LastEventAt.IsZero() && e.Timestamp.Sub(t.current.LastEventAt) > t.idleTimeout {
		rotate = true
	} else if e.Step == 1 && t.current.EventCount > 0 {
		rotate = true
	}

	if !rotate {
		return
	}

	// the ordinal keeps ids distinct when two rotations land in the same second
	session := &Session{
		Id:        fmt.Sprintf("session_%03d_%s", len(t.sessions)+1, e.Timestamp.Format("20060102_150405")),
		StartedAt: e.Timestamp,
	}

	t.sessions = append(t.sessions, session)
	t.current = session
	t.log.Sugar().Infof("started %s", session.Id)
}

// PendingCount serves as the idleness heuristic for the snapshot cache.
func (t *Tracker) PendingCount() int {
	t.lock.Lock()
	defer t.lock.Unlock()

	return len(t.pending)
}

// SolePending returns the only pending interval, or false when zero or more
// than one request is in flight.
func (t *Tracker) SolePending() (*Interval, bool) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if len(t.pending) != 1 {
		return nil, false
	}

	for _, interval := range t.pending {
		return interval, true
	}

	return nil, false
}

// Intervals returns all intervals observed so far, closed ones first.
func (t *Tracker) Intervals() []*Interval {
	t.lock.Lock()
	defer t.lock.Unlock()

	out := make([]*Interval, 0, len(t.closed)+len(t.pending))
	out = append(out, t.closed...)
	for _, interval := range t.pending {
		out = append(out, interval)
	}

	return out
}

// CompletedIntervals returns the closed intervals eligible for stat matching.
func (t *Tracker) CompletedIntervals() []*Interval {
	t.lock.Lock()
	defer t.lock.Unlock()

	out := []*Interval{}
	for _, interval := range t.closed {
		if interval.Status == StatusCompleted {
			out = append(out, interval)
		}
	}

	return out
}

func (t *Tracker) Sessions() []*Session {
	t.lock.Lock()
	defer t.lock.Unlock()

	return append([]*Session{}, t.sessions...)
}

// IgnoredEvents reports how many events changed no state: duplicate received
// events and terminal events with no matching pending interval.
func (t *Tracker) IgnoredEvents() (duplicates int, unknown int) {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.ignoredDuplicates, t.ignoredUnknown
}
