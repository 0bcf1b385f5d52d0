package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
)

// statusReport is what `volbridge status -json` prints.
type statusReport struct {
	Backend   AudioBackend `json:"backend"`
	Percent   int          `json:"percent"`
	Decibel   float64      `json:"decibel"`
	Muted     bool         `json:"muted"`
	Range     VolumeRange  `json:"range"`
	Tolerance int          `json:"tolerance_pct"`
	DSPState  string       `json:"dsp_state,omitempty"`
}

// processingStater is implemented by backends that expose an engine state.
type processingStater interface {
	ProcessingState() (string, error)
}

func runStatusSubcommand(args []string) int {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	cf := registerConfigFlags(fs)
	asJSON := fs.Bool("json", false, "Print the state as JSON")
	fs.Parse(args)

	cfg, err := cf.load(fs)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	logger := subcommandLogger(cfg)

	dev, err := openDevice(cfg, logger)
	if err != nil {
		logger.Error("open audio device", "error", err)
		return 1
	}
	defer dev.Close()

	ctrl, err := NewAudioController(dev, nil, 0, logger)
	if err != nil {
		logger.Error("init controller", "error", err)
		return 1
	}

	rep, err := collectStatus(cfg.Audio.Backend, dev, ctrl)
	if err != nil {
		logger.Error("read state", "error", err)
		return 1
	}

	if err := writeStatus(os.Stdout, rep, *asJSON); err != nil {
		logger.Error("write status", "error", err)
		return 1
	}
	return 0
}

func collectStatus(backend AudioBackend, dev AudioDevice, ctrl *AudioController) (statusReport, error) {
	st, err := ctrl.State()
	if err != nil {
		return statusReport{}, err
	}
	rep := statusReport{
		Backend:   backend,
		Percent:   int(st.Percent),
		Decibel:   st.Decibel,
		Muted:     st.Muted,
		Range:     ctrl.Range(),
		Tolerance: ctrl.Tolerance(),
	}
	if ps, ok := dev.(processingStater); ok {
		if s, err := ps.ProcessingState(); err == nil {
			rep.DSPState = s
		}
	}
	return rep, nil
}

func writeStatus(w io.Writer, rep statusReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	muted := "no"
	if rep.Muted {
		muted = "yes"
	}
	lines := []string{
		fmt.Sprintf("Audio backend: %s", rep.Backend),
		"",
		"Current Audio State:",
		fmt.Sprintf("  Volume (Percentage): %d%%", rep.Percent),
		fmt.Sprintf("  Volume (dB): %.2f dB", rep.Decibel),
		fmt.Sprintf("  Muted: %s", muted),
	}
	if rep.DSPState != "" {
		lines = append(lines, fmt.Sprintf("  DSP state: %s", rep.DSPState))
	}
	lines = append(lines,
		"",
		fmt.Sprintf("Volume Range: %s", rep.Range),
		fmt.Sprintf("Read-back tolerance: ±%d%%", rep.Tolerance),
	)
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}
