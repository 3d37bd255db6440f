// Package activation implements the Activation Controller (C5) from
// spec.md §4.5: blocking until a pgid's window opens, forwarding stdin to
// stdout for its duration, and guaranteeing a terminating signal at window
// close even if the caller crashes.
//
// spec.md models this as a single process forking a detached child that
// outlives it. The Go runtime does not support a bare fork() safely (forked
// children only retain the calling goroutine's state, not the rest of the
// runtime), so the two-process pattern is built the idiomatic Go way
// instead: the controller re-execs its own binary as a hidden
// "__terminator__" sub-command via os/exec, the way container runtimes in
// this pack's reference material (runc, containerd) re-exec themselves for
// a privileged child step rather than forking in place.
package activation

import (
	"io"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/ll0s0ll/timemanager/internal/interrupt"
	"github.com/ll0s0ll/timemanager/internal/logging"
	"github.com/ll0s0ll/timemanager/internal/procutil"
	"github.com/ll0s0ll/timemanager/internal/registry"
	"github.com/ll0s0ll/timemanager/internal/semlock"
)

// envEnd and envSignal name the environment variables used to hand the
// window end time and termination signal to the re-exec'd terminator.
// There is no shared memory between the two processes after fork, by
// design (spec.md §4.5): these two scalars are everything the child needs.
const (
	envEnd    = "TM_TERMINATOR_END"
	envSignal = "TM_TERMINATOR_SIGNAL"
)

// cancelSignal is always used to cancel a stale terminator from a prior
// activation (spec.md §4.5 step 1), independent of whichever signal the new
// activation will use at window close.
const cancelSignal = unix.SIGTERM

// Controller drives one pgid's activation.
type Controller struct {
	Store  *registry.Store
	Locker *semlock.Locker

	// Stdin/Stdout back the passthrough loop; they default to os.Stdin and
	// os.Stdout but are overridable for tests.
	Stdin  io.Reader
	Stdout io.Writer

	LockTimeout time.Duration
}

// Activate implements spec.md §4.5 in full: acquire lock, cancel any prior
// terminator, fork the new one, save+release, sleep to start, pass through,
// return once the window's input is exhausted.
func (c *Controller) Activate(pgid int, signal unix.Signal) error {
	timeout := c.LockTimeout
	if timeout <= 0 {
		timeout = semlock.DefaultTimeout
	}

	if err := c.Locker.Acquire(pgid, timeout); err != nil {
		return err
	}
	releaseOnce := func() { _ = c.Locker.Release(pgid) }
	interrupt.Register(releaseOnce)

	e, err := c.installTerminator(pgid, signal)
	if err != nil {
		releaseOnce()
		return err
	}

	if err := c.Locker.Release(pgid); err != nil {
		return err
	}

	sleepUntil(e.Start)

	stdin, stdout := c.Stdin, c.Stdout
	if stdin == nil {
		stdin = os.Stdin
	}
	if stdout == nil {
		stdout = os.Stdout
	}

	// The design notes (spec.md §9) explicitly accept that the terminator's
	// own signal may arrive mid-copy and kill this process; that is not an
	// error, it is the mechanism working as intended.
	_, err = io.Copy(stdout, stdin)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil
	}
	return nil
}

// installTerminator is the lock-held core of re-activation (spec.md §4.5
// steps 1 and 4-5's bookkeeping half): cancel any prior terminator for pgid,
// fork and save a new one, and return the up-to-date entry. It assumes the
// caller already holds the lock and leaves releasing it to the caller.
//
// autoextend reaches this through Reschedule, without the
// sleep-to-start/passthrough half of Activate, since its pgid is already inside its window when it
// extends - it only needs the terminator rescheduled, not a fresh block.
func (c *Controller) installTerminator(pgid int, signal unix.Signal) (registry.Entry, error) {
	entries, diagnostics := c.Store.Load()
	logging.WarnErr("activate: dropped malformed registry entries", diagnostics)
	e, ok := registry.Find(entries, pgid)
	if !ok {
		return registry.Entry{}, errors.Newf("no schedule entry for pgid %d; run add first", pgid)
	}

	// Step 1: an earlier activation left a terminator running - cancel its
	// scheduled wake-up before installing the new one. The terminator is a
	// re-exec'd child that never called Setpgid, so it is not a process
	// group leader: it must be cancelled by pid, not by the group-targeting
	// procutil.Signal (which would kill(-pid) a group that doesn't exist and
	// silently no-op on ESRCH, leaving the stale terminator running).
	if e.Terminator != 0 {
		logging.Get().Debug("cancelling stale terminator",
			zap.Int("pgid", pgid), zap.Int("terminator", e.Terminator))
		_ = procutil.SignalPID(e.Terminator, cancelSignal)
	}

	exe, err := os.Executable()
	if err != nil {
		return registry.Entry{}, errors.Wrap(err, "resolve own executable for terminator fork")
	}

	cmd := exec.Command(exe, "__terminator__")
	cmd.Env = append(os.Environ(),
		envEnd+"="+strconv.FormatInt(e.End(), 10),
		envSignal+"="+strconv.Itoa(int(signal)),
	)
	// The child closes stdin/stdout (spec.md §4.5 step 4); it never needs
	// them, so they are never connected in the first place.
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return registry.Entry{}, errors.Wrap(err, "fork terminator")
	}
	// "No-wait on child death" (spec.md §4.5 step 3): reap it from a
	// detached goroutine instead of blocking here, since Go has no direct
	// equivalent of SA_NOCLDWAIT.
	go func() { _ = cmd.Wait() }()

	e.Terminator = cmd.Process.Pid
	entries = registry.Upsert(entries, e)
	if err := c.Store.Save(entries); err != nil {
		return registry.Entry{}, errors.Wrap(err, "save terminator pid")
	}
	logging.Get().Debug("installed terminator",
		zap.Int("pgid", pgid), zap.Int("terminator", e.Terminator), zap.Int64("end", e.End()))
	return e, nil
}

// Reschedule re-arms the terminator for pgid's current entry without
// blocking to start or passing stdin through - the half of re-activation
// that autoextend needs after it grows an entry's duration.
func (c *Controller) Reschedule(pgid int, signal unix.Signal) error {
	timeout := c.LockTimeout
	if timeout <= 0 {
		timeout = semlock.DefaultTimeout
	}
	if err := c.Locker.Acquire(pgid, timeout); err != nil {
		return err
	}
	defer func() { _ = c.Locker.Release(pgid) }()

	_, err := c.installTerminator(pgid, signal)
	return err
}

// sleepUntil blocks until unixSeconds, or returns immediately if it has
// already passed - a short drift past end is acceptable, but waking early
// (undershoot) is not, per spec.md §4.5.
func sleepUntil(unixSeconds int64) {
	d := time.Until(time.Unix(unixSeconds, 0))
	if d > 0 {
		time.Sleep(d)
	}
}

// RunTerminator is the entire body of the re-exec'd "__terminator__" hidden
// sub-command: sleep until window end (or not at all, if it has already
// passed), then signal the owning process group and exit. It is a fresh
// process image (the product of exec, not fork), so it starts with default
// signal dispositions already - spec.md §4.5 step 4's "restores default
// signal handlers" requires no action here.
func RunTerminator() error {
	// Closed defensively; the parent never connects them, but a future
	// caller of RunTerminator should not depend on that.
	_ = os.Stdin.Close()
	_ = os.Stdout.Close()

	endStr := os.Getenv(envEnd)
	end, err := strconv.ParseInt(endStr, 10, 64)
	if err != nil {
		return errors.Wrapf(err, "terminator: malformed %s=%q", envEnd, endStr)
	}
	sigStr := os.Getenv(envSignal)
	sigNum, err := strconv.Atoi(sigStr)
	if err != nil {
		return errors.Wrapf(err, "terminator: malformed %s=%q", envSignal, sigStr)
	}

	sleepUntil(end)

	pgid, err := procutil.Self()
	if err != nil {
		return errors.Wrap(err, "terminator: resolve own process group")
	}
	return procutil.Signal(pgid, unix.Signal(sigNum))
}
