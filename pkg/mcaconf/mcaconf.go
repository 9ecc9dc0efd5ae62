// Package mcaconf holds the externally settable acquisition settings
// and validates them at the configuration boundary, so the pipeline
// itself never sees an out-of-range knob.
package mcaconf

import (
	"fmt"
	"math"
	"time"
)

// Defaults matching the stock detector firmware.
const (
	DefaultADCChannels = 4096
	DefaultDelimiter   = ";"
	DefaultEOL         = "\n"
	DefaultBaudRate    = 9600
	DefaultMaxPending  = 10000
	DefaultMaxFrameLen = 20
	DefaultMaxRowLen   = 65536
	DefaultReadTimeout = 100 * time.Millisecond

	DefaultPeakThreshold = 0.03
	DefaultPeakLag       = 150
	DefaultPeakWidth     = 2.0
	DefaultPeakSeekWidth = 2.0
)

// PeakSettings are the peak-finder tunables.
type PeakSettings struct {
	Threshold float64
	Lag       int
	Width     float64
	SeekWidth float64
}

// CalPoint is one calibration reference point as configured.
type CalPoint struct {
	Channel float64
	Energy  float64
}

// Settings is the full externally settable configuration surface.
type Settings struct {
	ADCChannels int
	Delimiter   string
	EOL         string
	BaudRate    int
	MaxPending  int
	MaxFrameLen int
	MaxRowLen   int
	ReadTimeout time.Duration

	Peak PeakSettings

	// Calibration holds 0 (disabled), 2 (linear) or 3 (quadratic)
	// reference points. Any other count is invalid, not partial.
	Calibration []CalPoint
}

// Defaults returns the stock settings.
func Defaults() Settings {
	return Settings{
		ADCChannels: DefaultADCChannels,
		Delimiter:   DefaultDelimiter,
		EOL:         DefaultEOL,
		BaudRate:    DefaultBaudRate,
		MaxPending:  DefaultMaxPending,
		MaxFrameLen: DefaultMaxFrameLen,
		MaxRowLen:   DefaultMaxRowLen,
		ReadTimeout: DefaultReadTimeout,
		Peak: PeakSettings{
			Threshold: DefaultPeakThreshold,
			Lag:       DefaultPeakLag,
			Width:     DefaultPeakWidth,
			SeekWidth: DefaultPeakSeekWidth,
		},
	}
}

// Validate checks every knob. Settings that fail validation must not
// reach the pipeline.
func (s Settings) Validate() error {
	if s.ADCChannels <= 0 {
		return fmt.Errorf("%w: adc_channels %d must be positive", ErrInvalidSettings, s.ADCChannels)
	}
	if len(s.Delimiter) != 1 {
		return fmt.Errorf("%w: delimiter %q must be a single character", ErrInvalidSettings, s.Delimiter)
	}
	if len(s.EOL) != 1 {
		return fmt.Errorf("%w: eol_char %q must be a single character", ErrInvalidSettings, s.EOL)
	}
	if s.Delimiter == s.EOL {
		return fmt.Errorf("%w: delimiter and eol_char must differ", ErrInvalidSettings)
	}
	if s.BaudRate <= 0 {
		return fmt.Errorf("%w: baud_rate %d must be positive", ErrInvalidSettings, s.BaudRate)
	}
	if s.MaxPending <= 0 {
		return fmt.Errorf("%w: max_pending %d must be positive", ErrInvalidSettings, s.MaxPending)
	}
	if s.MaxFrameLen <= 0 {
		return fmt.Errorf("%w: max_frame_len %d must be positive", ErrInvalidSettings, s.MaxFrameLen)
	}
	if s.MaxRowLen <= 0 {
		return fmt.Errorf("%w: max_row_len %d must be positive", ErrInvalidSettings, s.MaxRowLen)
	}
	if s.ReadTimeout <= 0 {
		return fmt.Errorf("%w: read_timeout must be positive", ErrInvalidSettings)
	}

	if s.Peak.Threshold <= 0 || s.Peak.Threshold > 1 {
		return fmt.Errorf("%w: peak threshold %g not in (0, 1]", ErrInvalidSettings, s.Peak.Threshold)
	}
	if s.Peak.Lag <= 0 || s.Peak.Width <= 0 || s.Peak.SeekWidth <= 0 {
		return fmt.Errorf("%w: peak lag/width/seek_width must be positive", ErrInvalidSettings)
	}

	switch len(s.Calibration) {
	case 0, 2, 3:
	default:
		return fmt.Errorf("%w: calibration needs exactly 2 or 3 points, got %d", ErrInvalidSettings, len(s.Calibration))
	}
	for i, p := range s.Calibration {
		if math.IsNaN(p.Channel) || math.IsInf(p.Channel, 0) || math.IsNaN(p.Energy) || math.IsInf(p.Energy, 0) {
			return fmt.Errorf("%w: calibration point %d is not finite", ErrInvalidSettings, i)
		}
		for j := 0; j < i; j++ {
			if s.Calibration[j].Channel == p.Channel {
				return fmt.Errorf("%w: calibration channel %g used twice", ErrInvalidSettings, p.Channel)
			}
		}
	}

	return nil
}
