// Package peaks detects statistically significant peaks in a spectrum
// trace using a dual-moving-average threshold detector and resolves
// them to energy labels or known isotope lines.
package peaks

import (
	"fmt"

	"github.com/herlein/gomca/pkg/calibration"
	"github.com/herlein/gomca/pkg/isotope"
)

// Mode selects how a detected peak is labeled.
type Mode int

const (
	// ModeEnergy labels each peak with its representative x value.
	ModeEnergy Mode = iota
	// ModeIsotope labels each peak with the nearest known gamma line,
	// or drops it when no line lies within tolerance.
	ModeIsotope
)

// Config holds the detector tunables.
type Config struct {
	// Threshold is the crossing height as a fraction of the trace
	// maximum, in (0, 1].
	Threshold float64
	// Lag is the window length of the long moving average.
	Lag int
	// Width is the largest x gap between crossings that still belong
	// to the same peak.
	Width float64
	// SeekWidth is the isotope match tolerance: absolute for a
	// single-crossing peak, multiplied by the group span otherwise.
	SeekWidth float64
}

// Validate checks the tunables.
func (c Config) Validate() error {
	if c.Threshold <= 0 || c.Threshold > 1 {
		return fmt.Errorf("%w: threshold %g not in (0, 1]", ErrInvalidConfig, c.Threshold)
	}
	if c.Lag <= 0 {
		return fmt.Errorf("%w: lag %d must be positive", ErrInvalidConfig, c.Lag)
	}
	if c.Width <= 0 {
		return fmt.Errorf("%w: width %g must be positive", ErrInvalidConfig, c.Width)
	}
	if c.SeekWidth <= 0 {
		return fmt.Errorf("%w: seek width %g must be positive", ErrInvalidConfig, c.SeekWidth)
	}
	return nil
}

// Marker is one peak annotation handed to the renderer: a position on
// the trace's x axis and a label.
type Marker struct {
	X     float64
	Label string
}

// Finder runs peak detection over a trace. It owns the marker list so
// a re-run replaces the previous markers instead of stacking stale
// overlays on top of them.
type Finder struct {
	cfg     Config
	mode    Mode
	table   isotope.Table
	markers []Marker
}

// New creates a Finder. The isotope table may be nil when the mode is
// ModeEnergy.
func New(cfg Config, mode Mode, table isotope.Table) (*Finder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Finder{cfg: cfg, mode: mode, table: table}, nil
}

// SetMode switches the labeling mode for subsequent detections.
func (f *Finder) SetMode(mode Mode) {
	f.mode = mode
}

// Detect scans the trace and returns the resulting markers. xs and ys
// must have equal length and xs must ascend (channel order or a
// calibrated axis, which a valid calibration keeps monotonic).
// Previously held markers are cleared first, so calling Detect twice
// with unchanged input yields the same single set.
func (f *Finder) Detect(xs, ys []float64) []Marker {
	f.markers = f.markers[:0]
	if len(xs) == 0 || len(xs) != len(ys) {
		return nil
	}

	longAvg := movingAverage(ys, f.cfg.Lag)

	maxVal := ys[0]
	for _, v := range ys[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	height := f.cfg.Threshold * maxVal

	// The scan is left-to-right, so crossings arrive in ascending x
	// order already.
	var group []float64
	for i := range ys {
		if ys[i]-longAvg[i] <= height {
			continue
		}
		x := xs[i]
		if len(group) > 0 && x-group[len(group)-1] > f.cfg.Width {
			f.closeGroup(group)
			group = group[:0]
		}
		group = append(group, x)
	}
	f.closeGroup(group)

	return f.Markers()
}

// closeGroup reduces one run of crossings to a marker.
func (f *Finder) closeGroup(group []float64) {
	if len(group) == 0 {
		return
	}

	var x, tolerance float64
	if len(group) == 1 {
		x = group[0]
		tolerance = f.cfg.SeekWidth
	} else {
		sum := 0.0
		for _, v := range group {
			sum += v
		}
		x = sum / float64(len(group))
		tolerance = f.cfg.SeekWidth * (group[len(group)-1] - group[0])
	}

	switch f.mode {
	case ModeIsotope:
		line, ok := isotope.Nearest(f.table, x, tolerance)
		if !ok {
			return
		}
		f.markers = append(f.markers, Marker{X: x, Label: line.Name})
	default:
		f.markers = append(f.markers, Marker{X: x, Label: fmt.Sprintf("%.2f", calibration.Round2(x))})
	}
}

// Markers returns a copy of the markers from the last detection.
func (f *Finder) Markers() []Marker {
	out := make([]Marker, len(f.markers))
	copy(out, f.markers)
	return out
}

// movingAverage computes a centered moving average over lag samples.
// An even lag takes the extra sample to the right. Windows near the
// edges truncate to the in-bounds samples and divide by the actual
// count instead of reading out of bounds.
func movingAverage(ys []float64, lag int) []float64 {
	half := lag / 2
	out := make([]float64, len(ys))

	for i := range ys {
		lo := i - half
		if lag%2 == 0 {
			lo++
		}
		hi := i + half
		if lo < 0 {
			lo = 0
		}
		if hi > len(ys)-1 {
			hi = len(ys) - 1
		}

		sum := 0.0
		for j := lo; j <= hi; j++ {
			sum += ys[j]
		}
		out[i] = sum / float64(hi-lo+1)
	}

	return out
}
