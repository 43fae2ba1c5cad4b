// Package progress folds pull-progress events into per-layer completion.
package progress

import (
	"github.com/germanoeich/dockctl/internal/core"
)

// State is the aggregate of one operation's progress events. A State value is
// never mutated in place by Apply; treat it as immutable.
type State struct {
	// Percent maps sub-resource id to completion in [0, 100].
	Percent map[string]float64
	// Status is the last status label seen on the stream.
	Status string
}

// Apply folds ev into s and returns the new state. When ev carries both
// counters and a positive total, Percent[ev.ID] becomes 100*current/total
// clamped to [0, 100]. Otherwise only Status changes. Entries are only ever
// overwritten, never removed.
func Apply(s State, ev core.ProgressEvent) State {
	next := State{Percent: s.Percent, Status: s.Status}
	if ev.Status != "" {
		next.Status = ev.Status
	}

	if ev.ID == "" || ev.Current == nil || ev.Total == nil || *ev.Total <= 0 {
		return next
	}

	pct := 100 * float64(*ev.Current) / float64(*ev.Total)
	switch {
	case pct < 0:
		pct = 0
	case pct > 100:
		pct = 100
	}

	percent := make(map[string]float64, len(s.Percent)+1)
	for id, v := range s.Percent {
		percent[id] = v
	}
	percent[ev.ID] = pct
	next.Percent = percent
	return next
}

// Overall returns the mean completion across all tracked ids, or 0 if none.
func (s State) Overall() float64 {
	if len(s.Percent) == 0 {
		return 0
	}
	var sum float64
	for _, v := range s.Percent {
		sum += v
	}
	return sum / float64(len(s.Percent))
}
