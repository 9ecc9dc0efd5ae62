package framing

import (
	"strconv"
	"strings"
)

// ChronoDecoder decodes chronological wire mode: one ASCII integer
// pulse height per event, separated by a single delimiter character.
type ChronoDecoder struct {
	cfg   Config
	buf   string
	stats Stats
}

// NewChronoDecoder creates a decoder for chronological wire mode.
func NewChronoDecoder(cfg Config) *ChronoDecoder {
	return &ChronoDecoder{cfg: cfg.withDefaults()}
}

// Feed appends one transport read to the frame buffer and returns the
// samples completed by it, in arrival order.
//
// The first and last split segments of every pass are discarded: the
// first is assumed truncated by a previous read boundary, the last is
// incomplete pending the next chunk. This matches the device's
// established wire behavior and can cost one valid sample per pass on
// a slow link; the loss shows up in Stats rather than being hidden.
func (d *ChronoDecoder) Feed(chunk []byte) []int {
	d.buf += string(chunk)

	var samples []int
	parts := strings.Split(d.buf, d.cfg.Delimiter)
	if len(parts) > 2 {
		for _, seg := range parts[1 : len(parts)-1] {
			// Consume the segment and its trailing delimiter whether or
			// not it validates; only the head and tail fragments stay.
			d.buf = strings.Replace(d.buf, seg+d.cfg.Delimiter, "", 1)

			tok := strings.TrimSpace(seg)
			if len(tok) == 0 || len(tok) >= d.cfg.MaxFrameLen {
				d.stats.DroppedTokens++
				continue
			}
			value, err := strconv.Atoi(tok)
			if err != nil || value < 0 || value > d.cfg.ADCChannels {
				d.stats.DroppedTokens++
				continue
			}
			samples = append(samples, value)
			d.stats.Accepted++
		}
	}

	// A long delimiter-free buffer holds no recoverable frame.
	if !strings.Contains(d.buf, d.cfg.Delimiter) && len(d.buf) > d.cfg.MaxFrameLen {
		d.buf = ""
		d.stats.BufferPurges++
	}

	return samples
}

// Reset discards any buffered partial frame.
func (d *ChronoDecoder) Reset() {
	d.buf = ""
}

// Stats returns the drop diagnostics accumulated so far.
func (d *ChronoDecoder) Stats() Stats {
	return d.stats
}
