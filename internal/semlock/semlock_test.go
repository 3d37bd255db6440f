package semlock

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/ll0s0ll/timemanager/internal/procutil"
	"github.com/ll0s0ll/timemanager/internal/registry"
)

func newTestLocker(t *testing.T) (*Locker, *registry.Store) {
	t.Helper()
	store := registry.New(fmt.Sprintf("/tm_test_%d_%s", os.Getpid(), t.Name()))
	locker := New(fmt.Sprintf("/tm_test_sem_%d_%s", os.Getpid(), t.Name()), store)
	t.Cleanup(func() {
		_ = store.Unlink()
		_ = locker.Unlink()
	})
	return locker, store
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	locker, store := newTestLocker(t)
	pgid, err := procutil.Self()
	if err != nil {
		t.Fatalf("procutil.Self: %v", err)
	}

	if err := locker.Acquire(pgid, time.Second); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	entries, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	e, ok := registry.Find(entries, pgid)
	if !ok || e.Lock != 1 {
		t.Fatalf("after Acquire, registry entry = %+v, %v, want lock=1", e, ok)
	}

	if err := locker.Release(pgid); err != nil {
		t.Fatalf("Release: %v", err)
	}

	entries, err = store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	e, ok = registry.Find(entries, pgid)
	if !ok || e.Lock != 0 {
		t.Fatalf("after Release, registry entry = %+v, %v, want lock=0", e, ok)
	}
}

func TestAcquireReentrant(t *testing.T) {
	locker, _ := newTestLocker(t)
	pgid, err := procutil.Self()
	if err != nil {
		t.Fatalf("procutil.Self: %v", err)
	}

	if err := locker.Acquire(pgid, time.Second); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	// A second Acquire from the same pgid must short-circuit on the
	// reentrancy check rather than deadlock against its own held flock.
	if err := locker.Acquire(pgid, time.Second); err != nil {
		t.Fatalf("reentrant Acquire: %v", err)
	}
	if err := locker.Release(pgid); err != nil {
		t.Fatalf("Release: %v", err)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	locker, _ := newTestLocker(t)
	if err := locker.Release(4242); err != nil {
		t.Errorf("Release on an entry that was never locked returned %v, want nil", err)
	}
}
