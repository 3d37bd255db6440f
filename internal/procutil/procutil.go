// Package procutil wraps the handful of process-group primitives the core
// needs: probing whether a pgid is still alive, reading the caller's own
// process group, and signalling a process group or a single process. It is the only package in this module that
// touches raw process identifiers.
package procutil

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// Alive reports whether pgid still has at least one live member, by sending
// the null signal to the process group the way spec.md's liveness GC
// requires: "no such process" means dead, anything else (including success
// or a permission error) means alive.
func Alive(pgid int) bool {
	err := unix.Kill(-pgid, 0)
	if err == nil {
		return true
	}
	return !errors.Is(err, unix.ESRCH)
}

// Self returns the process group id of the calling process.
func Self() (int, error) {
	pgid, err := unix.Getpgid(0)
	if err != nil {
		return 0, errors.Wrap(err, "getpgid")
	}
	return pgid, nil
}

// Signal delivers sig to every process in pgid. "No such process" is not
// reported as an error: the group is already gone, which is the outcome the
// caller wanted anyway.
func Signal(pgid int, sig unix.Signal) error {
	err := unix.Kill(-pgid, sig)
	if err != nil && !errors.Is(err, unix.ESRCH) {
		return errors.Wrapf(err, "signal pgid %d", pgid)
	}
	return nil
}

// SignalPID delivers sig to the single process pid, not its process group.
// A re-exec'd child that never called Setpgid is not a group leader - kill(2)
// against -pid would look for a group with that id, find none, and report
// ESRCH even while the process itself is alive - so cancelling a specific
// process (rather than everything in its group) must target its pid
// directly. "No such process" is not reported as an error: the process is
// already gone, which is the outcome the caller wanted anyway.
func SignalPID(pid int, sig unix.Signal) error {
	err := unix.Kill(pid, sig)
	if err != nil && !errors.Is(err, unix.ESRCH) {
		return errors.Wrapf(err, "signal pid %d", pid)
	}
	return nil
}
