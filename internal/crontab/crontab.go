// Package crontab wraps the crontab expression parser as the opaque
// "next-fire-time" oracle spec.md §1/§6 calls for: given an expression and a
// reference time, find the nearest matching fire time within a bounded
// past/future search window. The parser itself (github.com/robfig/cron/v3,
// vendored by both the kubernetes and grafana trees in this pack) is never
// respecified; only the search-window logic around it belongs to this
// module.
package crontab

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
)

// Find returns the fire time of expr nearest to ref: first a forward search
// up to future out, then - if nothing was found forward - a backward search
// up to past back. found is false if no match exists in either window,
// which maps to exit code 3 ("not found") per spec.md §7.
func Find(expr string, ref time.Time, past, future time.Duration) (fire time.Time, found bool, err error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, false, errors.Wrapf(err, "invalid crontab expression %q", expr)
	}

	if t := schedule.Next(ref); !t.After(ref.Add(future)) {
		return t, true, nil
	}

	// cron.Schedule only exposes Next, so the backward search walks forward
	// matches from the start of the window, keeping the last one that still
	// falls at or before ref.
	windowStart := ref.Add(-past)
	var last time.Time
	cursor := windowStart
	for {
		t := schedule.Next(cursor)
		if t.After(ref) {
			break
		}
		last = t
		cursor = t
	}
	if !last.IsZero() {
		return last, true, nil
	}

	return time.Time{}, false, nil
}
