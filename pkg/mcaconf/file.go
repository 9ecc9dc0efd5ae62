package mcaconf

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// fileSettings is the TOML schema. Only keys actually present in the
// file override the defaults.
type fileSettings struct {
	ADCChannels int     `toml:"adc_channels"`
	Delimiter   string  `toml:"delimiter"`
	EOLChar     string  `toml:"eol_char"`
	BaudRate    int     `toml:"baud_rate"`
	MaxPending  int     `toml:"max_pending"`
	MaxFrameLen int     `toml:"max_frame_len"`
	MaxRowLen   int     `toml:"max_row_len"`
	ReadTimeout string  `toml:"read_timeout"`
	Peak        peakTOML `toml:"peaks"`

	Calibration []calPointTOML `toml:"calibration"`
}

type peakTOML struct {
	Threshold float64 `toml:"threshold"`
	Lag       int     `toml:"lag"`
	Width     float64 `toml:"width"`
	SeekWidth float64 `toml:"seek_width"`
}

type calPointTOML struct {
	Channel float64 `toml:"channel"`
	Energy  float64 `toml:"energy"`
}

// Load reads a TOML settings file as an overlay on Defaults and
// validates the result.
func Load(path string) (Settings, error) {
	cfg := Defaults()

	var raw fileSettings
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}

	if meta.IsDefined("adc_channels") {
		cfg.ADCChannels = raw.ADCChannels
	}
	if meta.IsDefined("delimiter") {
		cfg.Delimiter = raw.Delimiter
	}
	if meta.IsDefined("eol_char") {
		cfg.EOL = raw.EOLChar
	}
	if meta.IsDefined("baud_rate") {
		cfg.BaudRate = raw.BaudRate
	}
	if meta.IsDefined("max_pending") {
		cfg.MaxPending = raw.MaxPending
	}
	if meta.IsDefined("max_frame_len") {
		cfg.MaxFrameLen = raw.MaxFrameLen
	}
	if meta.IsDefined("max_row_len") {
		cfg.MaxRowLen = raw.MaxRowLen
	}
	if meta.IsDefined("read_timeout") {
		d, err := time.ParseDuration(raw.ReadTimeout)
		if err != nil {
			return Settings{}, fmt.Errorf("load settings: bad read_timeout: %w", err)
		}
		cfg.ReadTimeout = d
	}
	if meta.IsDefined("peaks", "threshold") {
		cfg.Peak.Threshold = raw.Peak.Threshold
	}
	if meta.IsDefined("peaks", "lag") {
		cfg.Peak.Lag = raw.Peak.Lag
	}
	if meta.IsDefined("peaks", "width") {
		cfg.Peak.Width = raw.Peak.Width
	}
	if meta.IsDefined("peaks", "seek_width") {
		cfg.Peak.SeekWidth = raw.Peak.SeekWidth
	}
	if meta.IsDefined("calibration") {
		cfg.Calibration = make([]CalPoint, len(raw.Calibration))
		for i, p := range raw.Calibration {
			cfg.Calibration[i] = CalPoint{Channel: p.Channel, Energy: p.Energy}
		}
	}

	if err := cfg.Validate(); err != nil {
		return Settings{}, err
	}
	return cfg, nil
}
