// Package cronx adapts the cron library to the scheduler's needs: a single
// "next occurrence" question that never returns an error.
package cronx

import (
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Evaluator computes the next occurrence of a standard 5-field cron
// expression in UTC. Named months and weekdays (e.g. "FRI") are accepted.
type Evaluator struct {
	parser cron.Parser
}

func New() *Evaluator {
	return &Evaluator{
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

// NextRun returns the next UTC occurrence of expr strictly after now, as a
// unix-seconds timestamp. An unparseable expression yields ok=false; callers
// must treat that as "do not schedule".
func (e *Evaluator) NextRun(expr string, now time.Time) (int64, bool) {
	sched, err := e.parser.Parse(strings.TrimSpace(expr))
	if err != nil {
		return 0, false
	}
	next := sched.Next(now.UTC())
	if next.IsZero() {
		return 0, false
	}
	return next.Unix(), true
}

// Valid reports whether expr parses as a 5-field cron expression.
func (e *Evaluator) Valid(expr string) bool {
	_, err := e.parser.Parse(strings.TrimSpace(expr))
	return err == nil
}
