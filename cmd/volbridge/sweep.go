package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Exit codes of `volbridge sweep`.
const (
	sweepOK         = 0
	sweepMismatch   = 1
	sweepSetupError = 2
)

var errSweepMismatch = errors.New("read-back mismatch")

// sweepOptions controls one sweep run.
type sweepOptions struct {
	Levels []VolumePercent
	Pause  time.Duration
	DryRun bool // print intended actions only
}

func runSweepSubcommand(args []string) int {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	cf := registerConfigFlags(fs)
	levelsStr := fs.String("levels", "0,25,50,75,100", "Comma separated volume levels to visit")
	sleepMS := fs.Int("sleep-ms", 600, "Pause between operations in ms")
	dryRun := fs.Bool("dry-run", false, "Do not change the device; only print actions")
	fs.Parse(args)

	cfg, err := cf.load(fs)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return sweepSetupError
	}
	levels, err := parseLevels(*levelsStr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return sweepSetupError
	}
	logger := subcommandLogger(cfg)

	dev, err := openDevice(cfg, logger)
	if err != nil {
		logger.Error("open audio device", "error", err)
		return sweepSetupError
	}
	defer dev.Close()

	// The sweep checks the device, not the OSD.
	ctrl, err := NewAudioController(dev, nil, 0, logger)
	if err != nil {
		logger.Error("init controller", "error", err)
		return sweepSetupError
	}

	return runSweep(ctrl, sweepOptions{
		Levels: levels,
		Pause:  time.Duration(*sleepMS) * time.Millisecond,
		DryRun: *dryRun,
	}, os.Stdout)
}

// runSweep visits each level and verifies the read-back, toggles mute twice,
// then restores the original state. It returns a process exit code.
func runSweep(ctrl *AudioController, opts sweepOptions, out io.Writer) int {
	orig, err := ctrl.State()
	if err != nil {
		fmt.Fprintf(out, "Failed to read original state: %v\n", err)
		return sweepSetupError
	}
	tol := ctrl.Tolerance()
	fmt.Fprintf(out, "Original volume: %d%%, mute=%v (tolerance ±%d%%)\n", orig.Percent, orig.Muted, tol)

	defer func() {
		fmt.Fprintln(out, "Restoring original state")
		if opts.DryRun {
			return
		}
		if err := restoreState(ctrl, orig); err != nil {
			fmt.Fprintf(out, "Failed to restore audio state: %v\n", err)
		}
	}()

	if err := sweepLevels(ctrl, opts, tol, out); err != nil {
		fmt.Fprintln(out, err)
		if errors.Is(err, errSweepMismatch) {
			return sweepMismatch
		}
		return sweepSetupError
	}
	if err := sweepToggle(ctrl, opts, out); err != nil {
		fmt.Fprintln(out, err)
		if errors.Is(err, errSweepMismatch) {
			return sweepMismatch
		}
		return sweepSetupError
	}

	fmt.Fprintln(out, "Sweep completed successfully")
	return sweepOK
}

func sweepLevels(ctrl *AudioController, opts sweepOptions, tol int, out io.Writer) error {
	for _, lvl := range opts.Levels {
		fmt.Fprintf(out, "Setting volume to %d%%\n", lvl)
		if opts.DryRun {
			continue
		}
		res, err := ctrl.Apply(SetVolume{Percent: lvl})
		if err != nil {
			return err
		}
		time.Sleep(opts.Pause)
		fmt.Fprintf(out, " Read-back volume: %d%% (%.2f dB)\n", res.Percent, res.Decibel)
		if absInt(int(res.Percent)-int(lvl)) > tol {
			return fmt.Errorf(" %w: expected %d got %d", errSweepMismatch, lvl, res.Percent)
		}
	}
	return nil
}

func sweepToggle(ctrl *AudioController, opts sweepOptions, out io.Writer) error {
	fmt.Fprintln(out, "Testing mute toggle")
	if opts.DryRun {
		return nil
	}
	before, err := ctrl.State()
	if err != nil {
		return err
	}
	for i := 0; i < 2; i++ {
		res, err := ctrl.Apply(ToggleMute{})
		if err != nil {
			return err
		}
		time.Sleep(opts.Pause)
		want := before.Muted
		if i == 0 {
			want = !before.Muted
		}
		fmt.Fprintf(out, " Mute state after toggle: %v\n", res.Muted)
		if res.Muted != want {
			return fmt.Errorf(" %w: mute expected %v got %v", errSweepMismatch, want, res.Muted)
		}
	}
	return nil
}

func restoreState(ctrl *AudioController, st AudioResult) error {
	var mute AudioCommand = Unmute{}
	if st.Muted {
		mute = Mute{}
	}
	if _, err := ctrl.Apply(mute); err != nil {
		return err
	}
	_, err := ctrl.Apply(SetVolume{Percent: st.Percent})
	return err
}

// parseLevels parses "0,25,50" into percents, rejecting out-of-range values.
func parseLevels(s string) ([]VolumePercent, error) {
	var levels []VolumePercent
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid level %q: %w", part, err)
		}
		if v < 0 || v > 100 {
			return nil, fmt.Errorf("level %d out of range 0-100", v)
		}
		levels = append(levels, VolumePercent(v))
	}
	if len(levels) == 0 {
		return nil, errors.New("no levels given")
	}
	return levels, nil
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
