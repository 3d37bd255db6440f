// Package interval implements the Interval Engine (C4) from spec.md §4.4:
// overlap detection between a candidate entry and the registry, and
// enumeration of the unoccupied windows inside a caller-given range.
package interval

import (
	"sort"

	"github.com/ll0s0ll/timemanager/internal/registry"
)

// Conflicts reports whether candidate overlaps any entry in existing owned
// by a different pgid. Entries owned by the candidate's own pgid are
// ignored, since add upserts in place (spec.md §4.4).
func Conflicts(candidate registry.Entry, existing []registry.Entry) (registry.Entry, bool) {
	for _, e := range existing {
		if e.PGID == candidate.PGID {
			continue
		}
		if e.Start < candidate.End() && e.End() > candidate.Start {
			return e, true
		}
	}
	return registry.Entry{}, false
}

// Unoccupied enumerates the ordered, non-overlapping gap entries covering
// every maximal free interval inside [begin, begin+rng), per spec.md §4.4.
// Returned entries are owned by ownerPGID, unlocked, unactivated, and
// carry caption.
func Unoccupied(existing []registry.Entry, begin, rng int64, ownerPGID int, caption string) []registry.Entry {
	end := begin + rng

	sorted := make([]registry.Entry, len(existing))
	copy(sorted, existing)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var gaps []registry.Entry
	head := begin
	for _, e := range sorted {
		if head > end {
			break
		}
		if e.Start > head {
			gapEnd := e.Start
			if gapEnd > end {
				gapEnd = end
			}
			if gapEnd > head {
				gaps = append(gaps, registry.Entry{
					PGID:     ownerPGID,
					Start:    head,
					Duration: gapEnd - head,
					Caption:  caption,
				})
			}
		}
		if e.End() > head {
			head = e.End()
		}
	}
	if head < end {
		gaps = append(gaps, registry.Entry{
			PGID:     ownerPGID,
			Start:    head,
			Duration: end - head,
			Caption:  caption,
		})
	}
	return gaps
}
