package lifecycle

import (
	"time"
)

type EventKind string

const (
	EventReceived  EventKind = "received"
	EventCompleted EventKind = "completed"
	EventAborted   EventKind = "aborted"
)

// Event is one observation from the backend's structured log stream.
// Step and MaxSteps come from the agent's step counter when present; only
// the session segmentation heuristic reads them.
type Event struct {
	Kind      EventKind
	RequestId string
	Timestamp time.Time
	Step      int
	MaxSteps  int
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
)

// Interval is the observed lifetime of one request. End is zero while the
// interval is pending. Terminal status is set exactly once.
type Interval struct {
	RequestId  string
	RequestNum int
	Step       int
	SessionId  string
	Start      time.Time
	End        time.Time
	Status     Status
}

func (i *Interval) Terminal() bool {
	return i.Status == StatusCompleted || i.Status == StatusAborted
}

// Session is a bounded run of related requests, split on idle gaps or an
// explicit step counter reset.
type Session struct {
	Id           string
	StartedAt    time.Time
	LastEventAt  time.Time
	EventCount   int
	RequestCount int
}
