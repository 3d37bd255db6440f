package dispatch

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/ll0s0ll/timemanager/internal/crontab"
	"github.com/ll0s0ll/timemanager/internal/interval"
	"github.com/ll0s0ll/timemanager/internal/logging"
	"github.com/ll0s0ll/timemanager/internal/procutil"
	"github.com/ll0s0ll/timemanager/internal/registry"
	"github.com/ll0s0ll/timemanager/internal/semlock"
)

// readScheduleLine reads a single "start:duration:caption" line from r, per
// spec.md §4.1's user-facing wire form. It returns a reader positioned
// immediately after the consumed line: unoccupied's "flush remaining stdin
// bytes" behavior (spec.md scenario S3) needs whatever bufio buffered past
// the newline, not just what's left in the original r.
func readScheduleLine(r io.Reader) (registry.Schedule, io.Reader, error) {
	br := bufio.NewReaderSize(r, registry.MaxScheduleBytes)
	line, err := br.ReadString('\n')
	if err != nil && line == "" {
		return registry.Schedule{}, br, errors.New("no schedule line on stdin")
	}
	line = strings.TrimSuffix(line, "\n")
	sched, err := registry.DecodeSchedule(line)
	return sched, br, err
}

// Add implements the add sub-command: parse a schedule from stdin, reject
// a double-booking, upsert the entry under lock (spec.md §4.1/§4.4/§6).
func Add(d *Deps) error {
	sched, _, err := readScheduleLine(d.Stdin)
	if err != nil {
		return Misuse(err)
	}

	if err := d.Locker.Acquire(d.PGID, semlock.DefaultTimeout); err != nil {
		return err
	}
	defer func() { _ = d.Locker.Release(d.PGID) }()

	entries, diagnostics := d.Store.Load()
	logging.WarnErr("add: dropped malformed registry entries", diagnostics)
	candidate := registry.Entry{
		PGID:     d.PGID,
		Start:    sched.Start,
		Duration: sched.Duration,
		Caption:  sched.Caption,
	}
	if conflict, ok := interval.Conflicts(candidate, entries); ok {
		return errors.Newf("double booking: overlaps pgid %d", conflict.PGID)
	}

	entries = registry.Upsert(entries, candidate)
	return d.Store.Save(entries)
}

// Activate implements the activate sub-command (spec.md §4.5).
func Activate(d *Deps, signal unix.Signal) error {
	return d.Activation.Activate(d.PGID, signal)
}

// Set implements set: add then activate; on either's failure, terminate the
// caller's own pgid before returning the original error (spec.md §4.6).
//
// The activation signal here is always SIGTERM, independent of whatever -s
// value the caller passed to set: spec.md §9 documents this as the source's
// own bug (set's -s is advertised but never wired through to activate), and
// the open question instructs flagging it rather than fixing it.
func Set(d *Deps) error {
	if err := Add(d); err != nil {
		_ = Terminate(d)
		return err
	}
	if err := Activate(d, unix.SIGTERM); err != nil {
		_ = Terminate(d)
		return err
	}
	return nil
}

// Schedule implements the schedule sub-command: print entries to stdout,
// all of them if all is set, else only the caller's own; raw selects the
// wire schedule form, the human-readable rendering otherwise being out of
// scope per spec.md §1.
func Schedule(d *Deps, all, raw bool) error {
	entries, diagnostics := d.Store.Load()
	logging.WarnErr("schedule: dropped malformed registry entries", diagnostics)
	for _, e := range entries {
		if !all && e.PGID != d.PGID {
			continue
		}
		if raw {
			fmt.Fprint(d.Stdout, registry.EncodeSchedule(registry.Schedule{
				Start: e.Start, Duration: e.Duration, Caption: e.Caption,
			}))
			continue
		}
		fmt.Fprintf(d.Stdout, "pgid=%d start=%d duration=%d caption=%q\n",
			e.PGID, e.Start, e.Duration, e.Caption)
	}
	return nil
}

// Unoccupied implements unoccupied: find the first free window inside
// [begin, begin+rng) and emit it onto the stdin schedule's caption, then
// flush whatever else stdin still holds (spec.md §4.4, scenario S3).
func Unoccupied(d *Deps, begin, rng int64) error {
	sched, rest, err := readScheduleLine(d.Stdin)
	if err != nil {
		return Misuse(err)
	}

	entries, diagnostics := d.Store.Load()
	logging.WarnErr("unoccupied: dropped malformed registry entries", diagnostics)
	gaps := interval.Unoccupied(entries, begin, rng, d.PGID, sched.Caption)
	if len(gaps) == 0 {
		return NotFound("unoccupied")
	}
	first := gaps[0]
	fmt.Fprint(d.Stdout, registry.EncodeSchedule(registry.Schedule{
		Start: first.Start, Duration: first.Duration, Caption: first.Caption,
	}))
	_, _ = io.Copy(d.Stdout, rest)
	return nil
}

// Crontab implements crontab: replace the stdin schedule's start with the
// nearest match of expr to now, searched past/future of now (spec.md §4.4's
// sibling use of the opaque crontab oracle, scenario S4).
func Crontab(d *Deps, expr string, past, future time.Duration) error {
	sched, _, err := readScheduleLine(d.Stdin)
	if err != nil {
		return Misuse(err)
	}

	fire, found, err := crontab.Find(expr, time.Now(), past, future)
	if err != nil {
		return Misuse(err)
	}
	if !found {
		return NotFound("crontab")
	}

	fmt.Fprint(d.Stdout, registry.EncodeSchedule(registry.Schedule{
		Start: fire.Unix(), Duration: sched.Duration, Caption: sched.Caption,
	}))
	return nil
}

// Lock implements the explicit lock sub-command (spec.md §4.3).
func Lock(d *Deps, timeout time.Duration) error {
	err := d.Locker.Acquire(d.PGID, timeout)
	if errors.Is(err, semlock.ErrTimeout) {
		return withCode(err, 3)
	}
	return err
}

// Unlock implements the explicit unlock sub-command (spec.md §4.3).
func Unlock(d *Deps) error {
	return d.Locker.Release(d.PGID)
}

// Reset implements reset: unlink the shared segment and the semaphore
// (spec.md §6).
func Reset(d *Deps) error {
	if err := d.Store.Unlink(); err != nil {
		return err
	}
	return d.Locker.Unlink()
}

// Terminate implements terminate: send SIGTERM to the caller's own pgid
// (spec.md §6).
func Terminate(d *Deps) error {
	return procutil.Signal(d.PGID, unix.SIGTERM)
}

// Autoextend implements the autoextend background loop per SPEC_FULL.md's
// precise specification of it: every interval, grow the caller's entry into
// the single gap immediately following it (if any), and reschedule the
// terminator to match. It returns once the caller's own entry disappears
// (garbage collected) or the process is interrupted.
func Autoextend(d *Deps, every time.Duration, rng time.Duration, stop <-chan struct{}) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return nil
		case <-ticker.C:
		}

		entries, diagnostics := d.Store.Load()
		logging.WarnErr("autoextend: dropped malformed registry entries", diagnostics)
		e, ok := registry.Find(entries, d.PGID)
		if !ok {
			return nil
		}

		gaps := interval.Unoccupied(entries, e.End(), int64(rng.Seconds()), d.PGID, e.Caption)
		if len(gaps) == 0 || gaps[0].Start != e.End() {
			continue
		}
		gap := gaps[0]
		e.Duration = (gap.Start + gap.Duration) - e.Start
		entries = registry.Upsert(entries, e)

		if err := d.Locker.Acquire(d.PGID, semlock.DefaultTimeout); err != nil {
			continue
		}
		err := d.Store.Save(entries)
		_ = d.Locker.Release(d.PGID)
		if err != nil {
			continue
		}
		logging.Get().Debug("autoextend: grew entry into abutting gap",
			zap.Int("pgid", d.PGID), zap.Int64("newDuration", e.Duration))

		_ = d.Activation.Reschedule(d.PGID, unix.SIGTERM)
	}
}
