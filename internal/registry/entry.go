// Package registry implements the Entry Codec (C1) and the Shared Registry
// Store (C2) from spec.md §4.1-4.2: the one persistent record type, its
// colon-delimited wire encoding, and the shared-memory-backed collection of
// entries keyed by process group id.
package registry

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// MaxCaptionBytes bounds the human-readable description attached to an
// entry, per spec.md §3.
const MaxCaptionBytes = 256

// MaxRecordBytes bounds one encoded registry line, per spec.md §6.
const MaxRecordBytes = 510

// Entry is the one persistent record type described in spec.md §3.
type Entry struct {
	PGID       int
	Lock       int
	Terminator int
	Start      int64
	Duration   int64
	Caption    string
}

// End returns the entry's derived window end, start+duration.
func (e Entry) End() int64 { return e.Start + e.Duration }

// Overlaps reports whether e and other's windows intersect, per spec.md §3
// invariant 5: E1 and E2 overlap iff E1.start < E2.end && E2.start < E1.end.
func (e Entry) Overlaps(other Entry) bool {
	return e.Start < other.End() && other.Start < e.End()
}

// Validate checks the field-level constraints spec.md §3-4.1 place on an
// entry, independent of anything else in the registry.
func (e Entry) Validate() error {
	if e.PGID <= 0 {
		return errors.Newf("pgid must be positive, got %d", e.PGID)
	}
	if e.Lock != 0 && e.Lock != 1 {
		return errors.Newf("lock must be 0 or 1, got %d", e.Lock)
	}
	if e.Terminator < 0 {
		return errors.Newf("terminator must not be negative, got %d", e.Terminator)
	}
	if e.Start < 0 {
		return errors.Newf("start must not be negative, got %d", e.Start)
	}
	if e.Duration < 0 {
		return errors.Newf("duration must not be negative, got %d", e.Duration)
	}
	if strings.ContainsAny(e.Caption, "\n") {
		return errors.New("caption must not contain a newline")
	}
	if len(e.Caption) > MaxCaptionBytes {
		return errors.Newf("caption exceeds %d bytes", MaxCaptionBytes)
	}
	return nil
}

// Encode produces the exact wire form spec.md §4.1 requires:
// "{pgid}:{lock}:{terminator}:{start}:{duration}:{caption}\n".
func Encode(e Entry) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(e.PGID))
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(e.Lock))
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(e.Terminator))
	b.WriteByte(':')
	b.WriteString(strconv.FormatInt(e.Start, 10))
	b.WriteByte(':')
	b.WriteString(strconv.FormatInt(e.Duration, 10))
	b.WriteByte(':')
	b.WriteString(e.Caption)
	b.WriteByte('\n')
	return b.String()
}

// Decode parses one line (without its trailing newline) into an Entry. It
// rejects malformed lines rather than guessing, per spec.md §4.1: every one
// of the five leading separators must be ':', pgid must be positive, none of
// the four numeric fields after pgid may be negative, and lock must be 0 or
// 1. Decode does not trim whitespace.
func Decode(line string) (Entry, error) {
	var e Entry
	rest := line
	fields := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		idx := strings.IndexByte(rest, ':')
		if idx < 0 {
			return Entry{}, errors.Newf("malformed entry line %q: missing separator %d", line, i+1)
		}
		fields = append(fields, rest[:idx])
		rest = rest[idx+1:]
	}
	caption := rest

	pgid, err := strconv.Atoi(fields[0])
	if err != nil {
		return Entry{}, errors.Wrapf(err, "malformed pgid in %q", line)
	}
	lock, err := strconv.Atoi(fields[1])
	if err != nil {
		return Entry{}, errors.Wrapf(err, "malformed lock in %q", line)
	}
	terminator, err := strconv.Atoi(fields[2])
	if err != nil {
		return Entry{}, errors.Wrapf(err, "malformed terminator in %q", line)
	}
	start, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return Entry{}, errors.Wrapf(err, "malformed start in %q", line)
	}
	duration, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return Entry{}, errors.Wrapf(err, "malformed duration in %q", line)
	}

	e = Entry{
		PGID:       pgid,
		Lock:       lock,
		Terminator: terminator,
		Start:      start,
		Duration:   duration,
		Caption:    caption,
	}
	if err := e.Validate(); err != nil {
		return Entry{}, errors.Wrapf(err, "malformed entry %q", line)
	}
	return e, nil
}

// Schedule is the user-facing "start:duration:caption" form read from stdin
// by add/unoccupied/crontab and written to stdout by schedule -r,
// unoccupied, and crontab (spec.md §4.1, §6).
type Schedule struct {
	Start    int64
	Duration int64
	Caption  string
}

// MaxScheduleBytes bounds the stdin/stdout schedule line, per spec.md §6.
const MaxScheduleBytes = 512

// EncodeSchedule produces "{start}:{duration}:{caption}\n".
func EncodeSchedule(s Schedule) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(s.Start, 10))
	b.WriteByte(':')
	b.WriteString(strconv.FormatInt(s.Duration, 10))
	b.WriteByte(':')
	b.WriteString(s.Caption)
	b.WriteByte('\n')
	return b.String()
}

// DecodeSchedule parses "{start}:{duration}:{caption}", strict on separators
// and on a non-negative start, per spec.md §4.1.
func DecodeSchedule(line string) (Schedule, error) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return Schedule{}, errors.Newf("malformed schedule %q: missing separator", line)
	}
	startField := line[:idx]
	rest := line[idx+1:]

	idx2 := strings.IndexByte(rest, ':')
	if idx2 < 0 {
		return Schedule{}, errors.Newf("malformed schedule %q: missing separator", line)
	}
	durationField := rest[:idx2]
	caption := rest[idx2+1:]

	start, err := strconv.ParseInt(startField, 10, 64)
	if err != nil {
		return Schedule{}, errors.Wrapf(err, "malformed start in schedule %q", line)
	}
	if start < 0 {
		return Schedule{}, errors.Newf("schedule start must not be negative, got %d", start)
	}
	duration, err := strconv.ParseInt(durationField, 10, 64)
	if err != nil {
		return Schedule{}, errors.Wrapf(err, "malformed duration in schedule %q", line)
	}
	if duration < 0 {
		return Schedule{}, errors.Newf("schedule duration must not be negative, got %d", duration)
	}
	if strings.ContainsAny(caption, "\n") {
		return Schedule{}, errors.New("schedule caption must not contain a newline")
	}
	if len(line) > MaxScheduleBytes {
		return Schedule{}, errors.Newf("schedule line exceeds %d bytes", MaxScheduleBytes)
	}

	return Schedule{Start: start, Duration: duration, Caption: caption}, nil
}
