package dispatch

import (
	"io"
	"os"

	"github.com/ll0s0ll/timemanager/internal/activation"
	"github.com/ll0s0ll/timemanager/internal/registry"
	"github.com/ll0s0ll/timemanager/internal/semlock"
	"github.com/ll0s0ll/timemanager/internal/std"
)

// Deps bundles the core components one command handler needs, resolved
// once in main's Before hook from the selected database index (spec.md
// §4.6) and threaded through every handler call as an explicit context
// structure, in place of a process-global verbose flag and cached argv.
type Deps struct {
	Store      *registry.Store
	Locker     *semlock.Locker
	Activation *activation.Controller
	Out        *std.Output

	// PGID is the caller's own process group, the primary key every
	// mutating command upserts or looks up against.
	PGID int

	Stdin  io.Reader
	Stdout io.Writer
}

// New builds a Deps for database index dbIndex (0 for the unsuffixed
// default), resolving the registry and semaphore names per spec.md §4.6/§9.
func New(dbIndex int, pgid int, out *std.Output) *Deps {
	shmName := registry.SegmentName(registry.DefaultSHMName, dbIndex)
	semName := registry.SegmentName(registry.DefaultSemName, dbIndex)

	store := registry.New(shmName)
	locker := semlock.New(semName, store)

	return &Deps{
		Store:  store,
		Locker: locker,
		Activation: &activation.Controller{
			Store:  store,
			Locker: locker,
		},
		Out:    out,
		PGID:   pgid,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
	}
}
