// Package framing turns the raw byte stream read from a detector link
// into validated samples (chronological wire mode) or per-channel
// count deltas (histogram wire mode).
//
// The stream is inherently lossy: chunks arrive at arbitrary
// boundaries and frames can be truncated or corrupted. The contract
// here is to never fail on malformed input; bad tokens and bad rows
// are dropped and counted in Stats.
package framing

// DefaultMaxFrameLen bounds a single chronological token, delimiter
// included. Tokens at or past this length are noise.
const DefaultMaxFrameLen = 20

// DefaultMaxRowLen bounds the text of one histogram row while it is
// still incomplete. A buffer past this length with no line break is
// discarded.
const DefaultMaxRowLen = 65536

// Config holds the shared framer settings. Delimiter and EOL are
// single characters; validation happens at the configuration
// boundary, not here.
type Config struct {
	ADCChannels int    // accepted sample range is [0, ADCChannels]
	Delimiter   string // token separator, default ";"
	EOL         string // histogram row separator, default "\n"
	MaxFrameLen int    // chronological token length bound
	MaxRowLen   int    // histogram row text length bound
}

// withDefaults fills zero-valued limits.
func (c Config) withDefaults() Config {
	if c.Delimiter == "" {
		c.Delimiter = ";"
	}
	if c.EOL == "" {
		c.EOL = "\n"
	}
	if c.MaxFrameLen <= 0 {
		c.MaxFrameLen = DefaultMaxFrameLen
	}
	if c.MaxRowLen <= 0 {
		c.MaxRowLen = DefaultMaxRowLen
	}
	return c
}

// Stats counts discarded input for diagnostics. Malformed frames are
// never surfaced as errors (they are expected on a noisy link), but
// the counters make the loss observable.
type Stats struct {
	Accepted      uint64 // samples or rows emitted
	DroppedTokens uint64 // chronological tokens rejected
	DroppedRows   uint64 // histogram rows with a wrong channel count
	BufferPurges  uint64 // whole-buffer discards of delimiter-free noise
}
