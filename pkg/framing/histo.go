package framing

import (
	"strconv"
	"strings"
)

// HistoDecoder decodes histogram wire mode: each complete line is the
// device's full cumulative per-channel count snapshot. Consecutive
// rows are differenced against a rolling baseline so the caller only
// sees per-interval increments.
type HistoDecoder struct {
	cfg      Config
	buf      string
	baseline []int
	stats    Stats
}

// NewHistoDecoder creates a decoder for histogram wire mode.
func NewHistoDecoder(cfg Config) *HistoDecoder {
	return &HistoDecoder{cfg: cfg.withDefaults()}
}

// Feed appends one transport read and returns the per-channel deltas
// for every complete row it finished, in arrival order.
//
// The first accepted row after a reset establishes the baseline and
// emits nothing. A row whose token count differs from ADCChannels is
// dropped whole (the device is mid-configuration-change or the line is
// corrupted). Individual tokens that fail to parse count as zero; a
// single glitched field must not discard an entire row.
func (d *HistoDecoder) Feed(chunk []byte) [][]int {
	d.buf += string(chunk)

	lines := strings.Split(d.buf, d.cfg.EOL)
	// The trailing segment is an incomplete row; keep it for the next read.
	d.buf = lines[len(lines)-1]
	if len(d.buf) > d.cfg.MaxRowLen {
		d.buf = ""
		d.stats.BufferPurges++
	}

	var deltas [][]int
	for _, line := range lines[:len(lines)-1] {
		tokens := strings.Split(line, d.cfg.Delimiter)
		if len(tokens) != d.cfg.ADCChannels {
			d.stats.DroppedRows++
			continue
		}

		row := make([]int, len(tokens))
		for i, tok := range tokens {
			value, err := strconv.Atoi(strings.TrimSpace(tok))
			if err != nil {
				continue // unparseable channel counts as zero
			}
			row[i] = value
		}

		if d.baseline == nil {
			d.baseline = row
			d.stats.Accepted++
			continue
		}

		delta := make([]int, len(row))
		for i := range row {
			delta[i] = row[i] - d.baseline[i]
		}
		d.baseline = row
		d.stats.Accepted++
		deltas = append(deltas, delta)
	}

	return deltas
}

// Reset discards the buffered partial row and the session baseline.
// The next accepted row becomes a fresh baseline.
func (d *HistoDecoder) Reset() {
	d.buf = ""
	d.baseline = nil
}

// Stats returns the drop diagnostics accumulated so far.
func (d *HistoDecoder) Stats() Stats {
	return d.stats
}
