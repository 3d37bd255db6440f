package shm

import (
	"fmt"
	"os"
	"testing"
)

func testName(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("/tm_test_shm_%d_%s", os.Getpid(), t.Name())
}

func TestOpenCreatesAndSizesSegment(t *testing.T) {
	name := testName(t)
	t.Cleanup(func() { _ = Unlink(name) })

	seg, err := Open(name, 4096)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(seg.Bytes) != 4096 {
		t.Errorf("len(Bytes) = %d, want 4096", len(seg.Bytes))
	}
	if err := seg.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestWritesPersistAcrossOpens(t *testing.T) {
	name := testName(t)
	t.Cleanup(func() { _ = Unlink(name) })

	seg, err := Open(name, 64)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	copy(seg.Bytes, []byte("hello"))
	if err := seg.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	seg2, err := Open(name, 64)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer seg2.Close()
	if string(seg2.Bytes[:5]) != "hello" {
		t.Errorf("re-opened segment = %q, want %q", seg2.Bytes[:5], "hello")
	}
}

func TestUnlinkMissingIsNotAnError(t *testing.T) {
	if err := Unlink("/tm_test_shm_never_created"); err != nil {
		t.Errorf("Unlink of a missing segment returned %v, want nil", err)
	}
}
