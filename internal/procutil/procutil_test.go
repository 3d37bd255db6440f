package procutil

import (
	"os/exec"
	"testing"

	"golang.org/x/sys/unix"
)

func TestAliveSelf(t *testing.T) {
	pgid, err := Self()
	if err != nil {
		t.Fatalf("Self() failed: %v", err)
	}
	if !Alive(pgid) {
		t.Errorf("Alive(%d) = false for our own process group, want true", pgid)
	}
}

func TestAliveDeadPGID(t *testing.T) {
	// A pid this large is never actually assigned on the systems this tool
	// targets (max_pid_max tops out well below it).
	if Alive(1 << 30) {
		t.Error("Alive reported true for a process group that cannot exist")
	}
}

func TestSignalPIDTargetsProcessNotGroup(t *testing.T) {
	// cmd is started without Setpgid, exactly like the re-exec'd terminator
	// in internal/activation: it is a live process but not a group leader,
	// so the group-targeting Signal would report it dead (ESRCH against a
	// nonexistent group) while SignalPID must reach it directly.
	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start sleep: %v", err)
	}
	defer func() { _ = cmd.Process.Kill(); _ = cmd.Wait() }()

	if err := SignalPID(cmd.Process.Pid, unix.SIGTERM); err != nil {
		t.Fatalf("SignalPID: %v", err)
	}
	if err := cmd.Wait(); err == nil {
		t.Error("sleep exited cleanly, want it killed by SIGTERM")
	}
}

func TestSignalPIDDeadPIDIsNotAnError(t *testing.T) {
	if err := SignalPID(1<<30, unix.SIGTERM); err != nil {
		t.Errorf("SignalPID on a pid that cannot exist returned %v, want nil", err)
	}
}
