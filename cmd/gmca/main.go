// gmca records pulse-height data from a gamma detector over a serial
// or USB-bridge link, accumulates the energy spectrum and reports
// detected peaks.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/gousb"
	"github.com/rs/zerolog"

	"github.com/herlein/gomca/pkg/calibration"
	"github.com/herlein/gomca/pkg/isotope"
	"github.com/herlein/gomca/pkg/link"
	"github.com/herlein/gomca/pkg/mcaconf"
	"github.com/herlein/gomca/pkg/peaks"
	"github.com/herlein/gomca/pkg/session"
	"github.com/herlein/gomca/pkg/spectrum"
)

var (
	portName   = flag.String("port", "", "Serial port of the detector (e.g. /dev/ttyUSB0)")
	usbID      = flag.String("usb", "", "USB bridge as vid:pid (e.g. 10c4:ea60), bypassing the tty layer")
	configPath = flag.String("config", "", "TOML settings file (overlaid on defaults)")
	baudRate   = flag.Int("baud", 0, "Baud rate override")
	wireMode   = flag.String("mode", "chrono", "Wire mode: chrono or histogram")
	background = flag.Bool("background", false, "Record into the background spectrum")
	duration   = flag.Duration("duration", 0, "Recording duration (0 = until Ctrl+C)")
	refresh    = flag.Duration("refresh", time.Second, "Drain/report interval")
	peakMode   = flag.String("peaks", "", "Peak labels after recording: energy or isotope")
	isoPath    = flag.String("isotopes", "", "JSON isotope table for -peaks isotope")
	csvOut     = flag.String("csv", "", "Write the final spectrum to a CSV file")
	verbose    = flag.Bool("v", false, "Verbose output - log framer drop diagnostics")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Gamma detector multichannel analyzer\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -port /dev/ttyUSB0                    # Record until Ctrl+C\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -port /dev/ttyACM0 -mode histogram    # Device-side histogram stream\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -usb 10c4:ea60 -duration 5m -csv spectrum.csv\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -port /dev/ttyUSB0 -peaks isotope -isotopes isotopes.json\n", os.Args[0])
	}
	flag.Parse()

	logger := initLogger()

	if err := run(logger); err != nil {
		logger.Error().Err(err).Msg("gmca failed")
		os.Exit(1)
	}
}

func initLogger() zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	logger := zerolog.New(output).With().Timestamp().Str("app", "gmca").Logger()
	if !*verbose {
		logger = logger.Level(zerolog.InfoLevel)
	}
	return logger
}

func run(logger zerolog.Logger) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}

	mode := session.ModeChronological
	switch *wireMode {
	case "chrono":
	case "histogram":
		mode = session.ModeHistogram
	default:
		return fmt.Errorf("unknown wire mode %q", *wireMode)
	}

	target := spectrum.Data
	if *background {
		target = spectrum.Background
	}

	cal, err := buildCalibration(cfg)
	if err != nil {
		return err
	}

	finder, err := buildFinder(cfg)
	if err != nil {
		return err
	}

	l, cleanup, err := buildLink(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	rec, err := session.New(l, cfg, logger)
	if err != nil {
		return err
	}

	disconnected := make(chan struct{}, 1)
	rec.OnDisconnect(func(err error) {
		select {
		case disconnected <- struct{}{}:
		default:
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	if err := rec.Start(ctx, target, mode); err != nil {
		return fmt.Errorf("failed to start recording: %w", err)
	}

	fmt.Printf("Recording on %s (%s mode, %d channels)... Press Ctrl+C to stop\n",
		l, mode, cfg.ADCChannels)

	ticker := time.NewTicker(*refresh)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-disconnected:
			fmt.Println("\nDevice disconnected")
			break loop
		case <-ticker.C:
			rec.Drain()
			report(rec, target)
		}
	}

	if err := rec.Stop(); err != nil && rec.State() != session.StateIdle {
		logger.Warn().Err(err).Msg("stop reported an error")
	}

	snap := rec.Spectrum()
	liveMs := snap.DataTimeMs
	if target == spectrum.Background {
		liveMs = snap.BackgroundTimeMs
	}
	fmt.Printf("\nDone: %d total counts in %.1f s live time\n",
		snap.Total(target), float64(liveMs)/1000.0)
	if *verbose {
		stats := rec.Stats()
		logger.Debug().
			Uint64("accepted", stats.Accepted).
			Uint64("dropped_tokens", stats.DroppedTokens).
			Uint64("dropped_rows", stats.DroppedRows).
			Uint64("buffer_purges", stats.BufferPurges).
			Msg("framer diagnostics")
	}

	xs, ys, calibrated := rec.Trace(target, cal)

	if finder != nil {
		printPeaks(finder, xs, ys, calibrated)
	}

	if *csvOut != "" {
		if err := writeCSV(*csvOut, xs, ys, calibrated); err != nil {
			return err
		}
		fmt.Printf("Spectrum written to %s\n", *csvOut)
	}

	return nil
}

func loadSettings() (mcaconf.Settings, error) {
	cfg := mcaconf.Defaults()
	if *configPath != "" {
		var err error
		cfg, err = mcaconf.Load(*configPath)
		if err != nil {
			return mcaconf.Settings{}, err
		}
	}
	if *baudRate > 0 {
		cfg.BaudRate = *baudRate
	}
	if err := cfg.Validate(); err != nil {
		return mcaconf.Settings{}, err
	}
	return cfg, nil
}

func buildLink(cfg mcaconf.Settings) (link.Link, func(), error) {
	if *usbID != "" {
		vid, pid, err := parseUSBID(*usbID)
		if err != nil {
			return nil, nil, err
		}
		usbCtx := gousb.NewContext()
		return link.NewBridgeLink(usbCtx, vid, pid), func() { usbCtx.Close() }, nil
	}
	if *portName == "" {
		return nil, nil, fmt.Errorf("either -port or -usb is required (see -h)")
	}
	l := link.NewSerialLink(*portName)
	l.SetReadTimeout(cfg.ReadTimeout)
	return l, func() {}, nil
}

func parseUSBID(s string) (uint16, uint16, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("usb id %q must be vid:pid", s)
	}
	vid, err := strconv.ParseUint(parts[0], 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("bad vendor id %q: %w", parts[0], err)
	}
	pid, err := strconv.ParseUint(parts[1], 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("bad product id %q: %w", parts[1], err)
	}
	return uint16(vid), uint16(pid), nil
}

func buildCalibration(cfg mcaconf.Settings) (*calibration.Calibration, error) {
	switch len(cfg.Calibration) {
	case 2:
		return calibration.NewLinear(
			calibration.Point{Channel: cfg.Calibration[0].Channel, Energy: cfg.Calibration[0].Energy},
			calibration.Point{Channel: cfg.Calibration[1].Channel, Energy: cfg.Calibration[1].Energy},
		)
	case 3:
		return calibration.NewQuadratic(
			calibration.Point{Channel: cfg.Calibration[0].Channel, Energy: cfg.Calibration[0].Energy},
			calibration.Point{Channel: cfg.Calibration[1].Channel, Energy: cfg.Calibration[1].Energy},
			calibration.Point{Channel: cfg.Calibration[2].Channel, Energy: cfg.Calibration[2].Energy},
		)
	default:
		return nil, nil
	}
}

func buildFinder(cfg mcaconf.Settings) (*peaks.Finder, error) {
	if *peakMode == "" {
		return nil, nil
	}

	peakCfg := peaks.Config{
		Threshold: cfg.Peak.Threshold,
		Lag:       cfg.Peak.Lag,
		Width:     cfg.Peak.Width,
		SeekWidth: cfg.Peak.SeekWidth,
	}

	switch *peakMode {
	case "energy":
		return peaks.New(peakCfg, peaks.ModeEnergy, nil)
	case "isotope":
		if *isoPath == "" {
			return nil, fmt.Errorf("-peaks isotope requires -isotopes")
		}
		table, err := isotope.LoadTable(*isoPath)
		if err != nil {
			return nil, err
		}
		return peaks.New(peakCfg, peaks.ModeIsotope, table)
	default:
		return nil, fmt.Errorf("unknown peak mode %q", *peakMode)
	}
}

func report(rec *session.Recorder, target spectrum.Kind) {
	snap := rec.Spectrum()
	liveMs := snap.DataTimeMs
	if target == spectrum.Background {
		liveMs = snap.BackgroundTimeMs
	}

	total := snap.Total(target)
	seconds := float64(liveMs) / 1000.0
	cps := 0.0
	if seconds > 0 {
		cps = float64(total) / seconds
	}

	pending, saturated := rec.Pending()
	line := fmt.Sprintf("\r%8d counts | %7.1f cps | %6.1f s", total, cps, seconds)
	if pending > 0 {
		line += fmt.Sprintf(" | %d pending", pending)
	}
	if saturated {
		line += " | SATURATED"
	}
	fmt.Print(line)
}

func printPeaks(finder *peaks.Finder, xs, ys []float64, calibrated bool) {
	markers := finder.Detect(xs, ys)
	if len(markers) == 0 {
		fmt.Println("No peaks found")
		return
	}

	unit := "ch"
	if calibrated {
		unit = "keV"
	}
	fmt.Printf("Peaks (%d):\n", len(markers))
	for _, m := range markers {
		fmt.Printf("  %10.2f %s  %s\n", m.X, unit, m.Label)
	}
}

func writeCSV(path string, xs, ys []float64, calibrated bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer f.Close()

	header := "channel,counts"
	if calibrated {
		header = "energy_kev,counts"
	}
	if _, err := fmt.Fprintln(f, header); err != nil {
		return err
	}
	for i := range xs {
		if _, err := fmt.Fprintf(f, "%g,%g\n", xs[i], ys[i]); err != nil {
			return err
		}
	}
	return nil
}
