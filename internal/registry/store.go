package registry

import (
	"bytes"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"

	"github.com/ll0s0ll/timemanager/internal/procutil"
	"github.com/ll0s0ll/timemanager/internal/shm"
)

// SegmentSize is the fixed size of the shared memory segment backing the
// registry, per spec.md §3/§6.
const SegmentSize = 65536

// MaxEntries is the registry's fixed capacity, per spec.md §4.2/§6.
const MaxEntries = 1024

// DefaultSHMName and DefaultSemName are the unsuffixed named OS objects, per
// spec.md §6.
const (
	DefaultSHMName = "/shm_timemanager"
	DefaultSemName = "/sem_timemanager"
)

// SegmentName appends the database index (1..5) to base, or returns base
// unchanged for the default database (index 0), per spec.md §4.6/§9.
func SegmentName(base string, dbIndex int) string {
	if dbIndex == 0 {
		return base
	}
	return base + string(rune('0'+dbIndex))
}

// Store is the Shared Registry Store (C2): it is the only component that
// touches the shared segment directly, and it never takes the cross-process
// lock itself - callers that mutate must already hold it via semlock.
type Store struct {
	Name string
}

// New returns a Store bound to the named shared memory segment.
func New(name string) *Store {
	return &Store{Name: name}
}

// Load maps the segment (creating it if absent), decodes every line, and
// drops entries whose owning pgid is no longer alive. Decode failures on
// individual lines are tolerated (spec.md §4.2, §7 propagation policy): the
// offending line is skipped rather than aborting the whole load. Those
// skipped lines are returned as a non-fatal diagnostics error the caller may
// log under -v; it must never be treated as a failure of Load itself.
func (s *Store) Load() ([]Entry, error) {
	seg, err := shm.Open(s.Name, SegmentSize)
	if err != nil {
		return nil, err
	}
	defer seg.Close()

	text := string(bytes.TrimRight(seg.Bytes, "\x00"))

	var (
		entries     []Entry
		diagnostics error
	)
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			continue
		}
		if len(entries) >= MaxEntries {
			break
		}
		e, err := Decode(line)
		if err != nil {
			diagnostics = multierror.Append(diagnostics, err)
			continue
		}
		if !procutil.Alive(e.PGID) {
			continue
		}
		entries = append(entries, e)
	}
	return entries, diagnostics
}

// Save encodes entries and writes them back to the segment in full,
// zeroing the remainder. It fails if the encoded total exceeds the segment
// size or the entry count exceeds capacity (spec.md §4.2, §7).
func (s *Store) Save(entries []Entry) error {
	if len(entries) > MaxEntries {
		return errors.Newf("registry full: %d entries exceeds capacity %d", len(entries), MaxEntries)
	}

	var buf bytes.Buffer
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return errors.Wrapf(err, "refusing to save invalid entry for pgid %d", e.PGID)
		}
		buf.WriteString(Encode(e))
	}
	if buf.Len() > SegmentSize {
		return errors.Newf("encoded registry (%d bytes) exceeds segment size %d", buf.Len(), SegmentSize)
	}

	seg, err := shm.Open(s.Name, SegmentSize)
	if err != nil {
		return err
	}
	defer seg.Close()

	for i := range seg.Bytes {
		seg.Bytes[i] = 0
	}
	copy(seg.Bytes, buf.Bytes())
	return nil
}

// Unlink removes the shared memory segment. "Not found" is not an error.
func (s *Store) Unlink() error {
	return shm.Unlink(s.Name)
}

// Upsert returns a copy of entries with e inserted, replacing any existing
// entry for e.PGID (spec.md invariant 1: pgid is unique).
func Upsert(entries []Entry, e Entry) []Entry {
	for i := range entries {
		if entries[i].PGID == e.PGID {
			out := make([]Entry, len(entries))
			copy(out, entries)
			out[i] = e
			return out
		}
	}
	out := make([]Entry, len(entries), len(entries)+1)
	copy(out, entries)
	return append(out, e)
}

// Find returns the entry owned by pgid, if any.
func Find(entries []Entry, pgid int) (Entry, bool) {
	for _, e := range entries {
		if e.PGID == pgid {
			return e, true
		}
	}
	return Entry{}, false
}

// Remove returns a copy of entries with pgid's entry removed, if present.
func Remove(entries []Entry, pgid int) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.PGID != pgid {
			out = append(out, e)
		}
	}
	return out
}
