package domain

import "time"

// Priority of a status report. Values follow the order Low < Normal < High.
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityNormal
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Report is the aggregated result of one run, produced once and then
// handed read-only to the sinks.
type Report struct {
	RunID        string
	GeneratedAt  time.Time
	Total        int
	Up           []string
	Down         []string
	Priority     Priority
	ShouldNotify bool
	Subject      string
	Body         string
	LogLine      string
}
