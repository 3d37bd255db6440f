package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sys/unix"

	"github.com/ll0s0ll/timemanager/internal/activation"
	"github.com/ll0s0ll/timemanager/internal/dispatch"
	"github.com/ll0s0ll/timemanager/internal/interrupt"
	"github.com/ll0s0ll/timemanager/internal/logging"
	"github.com/ll0s0ll/timemanager/internal/procutil"
	"github.com/ll0s0ll/timemanager/internal/sgconf"
	"github.com/ll0s0ll/timemanager/internal/std"
)

// Do not add initialization here beyond flag declarations - everything that
// needs flags parsed first belongs in tm.Before.
var (
	dbIndex int
	verbose bool
)

func main() {
	if err := tm.Run(os.Args); err != nil {
		std.Out.WriteFailuref(err.Error())
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	if ec, ok := err.(cli.ExitCoder); ok {
		return ec.ExitCode()
	}
	return 1
}

// tm is the TimeManager CLI application.
var tm = &cli.App{
	Usage: "process-group-oriented temporal dispatcher",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:        "d",
			Usage:       "select the database index (1-5)",
			Destination: &dbIndex,
		},
		&cli.BoolFlag{
			Name:        "v",
			Usage:       "enable verbose diagnostics to stderr",
			Destination: &verbose,
		},
	},
	Before: func(cmd *cli.Context) error {
		interrupt.Listen()
		sync := logging.Init(verbose)
		interrupt.Register(sync)

		// __terminator__ is a hidden re-exec target, not a user-facing
		// sub-command: it needs none of the registry/lock wiring below.
		if cmd.Args().First() == "__terminator__" {
			return nil
		}

		resolved, err := sgconf.Resolve(dbIndex, os.Getenv(sgconf.EnvVar))
		if err != nil {
			return dispatch.Misuse(err)
		}

		pgid, err := procutil.Self()
		if err != nil {
			return err
		}

		cmd.App.Metadata["deps"] = dispatch.New(resolved, pgid, std.Out)
		return nil
	},
	Commands: []*cli.Command{
		addCommand,
		activateCommand,
		setCommand,
		scheduleCommand,
		unoccupiedCommand,
		crontabCommand,
		lockCommand,
		unlockCommand,
		resetCommand,
		terminateCommand,
		autoextendCommand,
		terminatorCommand,
	},
	ExitErrHandler: func(cmd *cli.Context, err error) {
		if err == nil {
			return
		}
		if msg := err.Error(); msg != "" {
			std.Out.WriteFailuref(msg)
		}
		os.Exit(exitCodeFor(err))
	},
	HideHelpCommand: true,
}

func deps(cmd *cli.Context) *dispatch.Deps {
	return cmd.App.Metadata["deps"].(*dispatch.Deps)
}

var addCommand = &cli.Command{
	Name:  "add",
	Usage: "parse a schedule from stdin and upsert the caller's entry",
	Action: func(cmd *cli.Context) error {
		return dispatch.Add(deps(cmd))
	},
}

var activateCommand = &cli.Command{
	Name:  "activate",
	Usage: "block to start, pass stdin to stdout during the window, signal at end",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "s", Usage: "signal to deliver at window end", Value: int(unix.SIGTERM)},
	},
	Action: func(cmd *cli.Context) error {
		return dispatch.Activate(deps(cmd), unix.Signal(cmd.Int("s")))
	},
}

var setCommand = &cli.Command{
	Name:  "set",
	Usage: "add then activate; terminate the caller's pgid if either fails",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "s", Usage: "signal to deliver at window end (not yet wired through, see DESIGN.md)", Value: int(unix.SIGTERM)},
	},
	Action: func(cmd *cli.Context) error {
		return dispatch.Set(deps(cmd))
	},
}

var scheduleCommand = &cli.Command{
	Name:  "schedule",
	Usage: "print registry entries to stdout",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "a", Usage: "include entries for every pgid, not just the caller's"},
		&cli.BoolFlag{Name: "r", Usage: "print the raw start:duration:caption wire form"},
	},
	Action: func(cmd *cli.Context) error {
		return dispatch.Schedule(deps(cmd), cmd.Bool("a"), cmd.Bool("r"))
	},
}

var unoccupiedCommand = &cli.Command{
	Name:  "unoccupied",
	Usage: "emit the first free window into the stdin schedule",
	Flags: []cli.Flag{
		&cli.Int64Flag{Name: "b", Usage: "search window begin, unix seconds"},
		&cli.Int64Flag{Name: "r", Usage: "search window range, seconds"},
	},
	Action: func(cmd *cli.Context) error {
		return dispatch.Unoccupied(deps(cmd), cmd.Int64("b"), cmd.Int64("r"))
	},
}

var crontabCommand = &cli.Command{
	Name:      "crontab",
	Usage:     "set the stdin schedule's start to the next match of a cron expression",
	ArgsUsage: "<expression>",
	Flags: []cli.Flag{
		&cli.DurationFlag{Name: "r", Usage: "how far into the past to search", Value: 24 * time.Hour},
		&cli.DurationFlag{Name: "R", Usage: "how far into the future to search", Value: 24 * time.Hour},
	},
	Action: func(cmd *cli.Context) error {
		if cmd.NArg() < 1 {
			return dispatch.Misuse(fmt.Errorf("crontab: missing expression argument"))
		}
		return dispatch.Crontab(deps(cmd), cmd.Args().First(), cmd.Duration("r"), cmd.Duration("R"))
	},
}

var lockCommand = &cli.Command{
	Name:  "lock",
	Usage: "explicitly acquire the write lock",
	Flags: []cli.Flag{
		&cli.DurationFlag{Name: "t", Usage: "acquisition timeout", Value: 5 * time.Second},
	},
	Action: func(cmd *cli.Context) error {
		return dispatch.Lock(deps(cmd), cmd.Duration("t"))
	},
}

var unlockCommand = &cli.Command{
	Name:  "unlock",
	Usage: "explicitly release the write lock",
	Action: func(cmd *cli.Context) error {
		return dispatch.Unlock(deps(cmd))
	},
}

var resetCommand = &cli.Command{
	Name:  "reset",
	Usage: "unlink the shared memory segment and the semaphore",
	Action: func(cmd *cli.Context) error {
		return dispatch.Reset(deps(cmd))
	},
}

var terminateCommand = &cli.Command{
	Name:  "terminate",
	Usage: "send SIGTERM to the caller's own pgid",
	Action: func(cmd *cli.Context) error {
		return dispatch.Terminate(deps(cmd))
	},
}

var autoextendCommand = &cli.Command{
	Name:  "autoextend",
	Usage: "background loop extending the caller's entry into abutting free space",
	Flags: []cli.Flag{
		&cli.DurationFlag{Name: "i", Usage: "check interval", Value: 30 * time.Second},
		&cli.DurationFlag{Name: "r", Usage: "range to consider abutting", Value: time.Hour},
	},
	Action: func(cmd *cli.Context) error {
		stop := make(chan struct{})
		interrupt.Register(func() { close(stop) })
		return dispatch.Autoextend(deps(cmd), cmd.Duration("i"), cmd.Duration("r"), stop)
	},
}

// terminatorCommand is the hidden re-exec target the Activation Controller
// (internal/activation) forks itself as; it is never invoked directly by a
// user and carries no help text of its own.
var terminatorCommand = &cli.Command{
	Name:   "__terminator__",
	Hidden: true,
	Action: func(cmd *cli.Context) error {
		return activation.RunTerminator()
	},
}
