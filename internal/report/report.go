// Package report turns the up/down sets of a run into a Report: priority,
// notification decision and the text the sinks deliver.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hamed0406/srvstatus/internal/domain"
)

const (
	TimestampLayout = "[2006-01-02 15:04:05]"
	SubjectPrefix   = "Server Status Report - "

	downWarning = "***CHECK IF SERVERS LISTED ARE REALLY DOWN!***"
	ReallyBad   = "***THIS IS REALLY BAD!!!***"
)

func Timestamp(t time.Time) string { return t.Format(TimestampLayout) }

// DerivePriority applies the rules in order: nothing up or anything down is
// High; everything configured up is Low; anything else is Normal.
func DerivePriority(up, down, total int) domain.Priority {
	switch {
	case up == 0:
		return domain.PriorityHigh
	case down > 0:
		return domain.PriorityHigh
	case up == total:
		return domain.PriorityLow
	default:
		return domain.PriorityNormal
	}
}

// Build derives the report for one run. total is the number of configured
// targets, which can exceed len(up)+len(down) when targets were skipped.
func Build(up, down []domain.Target, total int, now time.Time) domain.Report {
	r := domain.Report{
		RunID:        uuid.NewString(),
		GeneratedAt:  now,
		Total:        total,
		Up:           names(up),
		Down:         names(down),
		Priority:     DerivePriority(len(up), len(down), total),
		ShouldNotify: len(down) > 0,
	}

	ts := Timestamp(now)
	r.Subject = SubjectPrefix + ts
	r.Body = body(r, ts)
	if len(r.Down) > 0 {
		r.LogLine = fmt.Sprintf("%s servers down: %s", ts, List(r.Down))
	} else {
		r.LogLine = ts + " all servers up!"
	}
	return r
}

func body(r domain.Report, ts string) string {
	downStr := "Servers down: None!"
	if len(r.Down) > 0 {
		downStr = fmt.Sprintf("Servers down: %s   %s", List(r.Down), downWarning)
	}
	upStr := "Servers online: None!  " + ReallyBad
	if len(r.Up) > 0 {
		upStr = "Servers online: " + List(r.Up)
	}

	var b strings.Builder
	b.WriteString(SubjectPrefix + ts + "\n\n")
	b.WriteString(downStr + "\n\n")
	b.WriteString(upStr + "\n")
	return b.String()
}

// List renders target names as "[a, b]".
func List(items []string) string {
	return "[" + strings.Join(items, ", ") + "]"
}

func names(ts []domain.Target) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.Name())
	}
	return out
}
