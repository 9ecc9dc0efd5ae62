// Package spectrum owns the in-memory energy histograms for one
// acquisition session and the derived counts-per-second views.
package spectrum

// Kind selects which histogram an operation targets.
type Kind int

const (
	// Data is the active acquisition histogram.
	Data Kind = iota
	// Background is the background acquisition histogram.
	Background
)

func (k Kind) String() string {
	if k == Background {
		return "background"
	}
	return "data"
}

// Spectrum holds the data and background histograms plus their
// accumulated live time. Arrays start empty and are grown to the
// channel count on first use; they are cleared on reset or on a new
// recording, never shrunk.
type Spectrum struct {
	Data       []int
	Background []int

	// Live time per target in milliseconds, excluding paused
	// intervals. Bookkeeping is driven by the session controller;
	// this package only consumes it for CPS.
	DataTimeMs       int64
	BackgroundTimeMs int64
}

// New returns an empty spectrum. Arrays allocate lazily on the first
// sample so channel-count changes before recording cost nothing.
func New() *Spectrum {
	return &Spectrum{}
}

func (s *Spectrum) bins(k Kind) *[]int {
	if k == Background {
		return &s.Background
	}
	return &s.Data
}

func (s *Spectrum) liveTimeMs(k Kind) int64 {
	if k == Background {
		return s.BackgroundTimeMs
	}
	return s.DataTimeMs
}

// AddLiveTime credits elapsed recording time to a target.
func (s *Spectrum) AddLiveTime(k Kind, ms int64) {
	if k == Background {
		s.BackgroundTimeMs += ms
		return
	}
	s.DataTimeMs += ms
}

// AddCounts increments the target bin for each chronological sample.
// Samples are pre-validated by the framer to lie in [0, channels];
// a value equal to the array length has no bin and is ignored.
func (s *Spectrum) AddCounts(k Kind, samples []int, channels int) {
	bins := s.bins(k)
	if len(*bins) == 0 {
		*bins = make([]int, channels)
	}
	for _, v := range samples {
		if v >= 0 && v < len(*bins) {
			(*bins)[v]++
		}
	}
}

// AddDeltas applies one histogram-mode delta row to the target.
func (s *Spectrum) AddDeltas(k Kind, deltas []int, channels int) {
	bins := s.bins(k)
	if len(*bins) == 0 {
		*bins = make([]int, channels)
	}
	n := len(deltas)
	if n > len(*bins) {
		n = len(*bins)
	}
	for i := 0; i < n; i++ {
		(*bins)[i] += deltas[i]
	}
}

// Total returns the sum of all bins of a target.
func (s *Spectrum) Total(k Kind) int {
	total := 0
	for _, v := range *s.bins(k) {
		total += v
	}
	return total
}

// CPS divides each bin by the target's live time in seconds. A zero
// live time yields an all-zero result rather than Inf.
func (s *Spectrum) CPS(k Kind) []float64 {
	bins := *s.bins(k)
	out := make([]float64, len(bins))
	seconds := float64(s.liveTimeMs(k)) / 1000.0
	if seconds <= 0 {
		return out
	}
	for i, v := range bins {
		out[i] = float64(v) / seconds
	}
	return out
}

// Subtracted returns data minus background per bin, clamped at zero.
// Bins beyond the shorter array pass through unchanged.
func (s *Spectrum) Subtracted() []int {
	out := make([]int, len(s.Data))
	copy(out, s.Data)
	for i := range out {
		if i >= len(s.Background) {
			break
		}
		out[i] -= s.Background[i]
		if out[i] < 0 {
			out[i] = 0
		}
	}
	return out
}

// Clear empties one target and zeroes its live time.
func (s *Spectrum) Clear(k Kind) {
	*s.bins(k) = nil
	if k == Background {
		s.BackgroundTimeMs = 0
		return
	}
	s.DataTimeMs = 0
}
