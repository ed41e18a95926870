package domain

import "time"

type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"
)

// ProbeResult is the outcome of one reachability attempt. It only lives
// for the duration of a run.
type ProbeResult struct {
	Target     Target        `json:"target"`
	Status     Status        `json:"status"`
	Reason     string        `json:"reason,omitempty"`
	Latency    time.Duration `json:"latency"`
	ObservedAt time.Time     `json:"observed_at"`
}

func (r ProbeResult) Up() bool { return r.Status == StatusUp }
