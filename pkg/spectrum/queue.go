package spectrum

import "github.com/rs/zerolog"

// PendingQueue buffers validated chronological samples between the
// read loop and the caller's timer-driven drain. Once the pending
// count reaches its ceiling the queue saturates: new samples are
// dropped (with one warning, not one per sample) until a drain makes
// room again. Growth is bounded no matter how fast the link talks.
type PendingQueue struct {
	max       int
	samples   []int
	dropped   uint64
	saturated bool
	log       zerolog.Logger
}

// NewPendingQueue creates a queue holding at most max samples.
func NewPendingQueue(max int, logger zerolog.Logger) *PendingQueue {
	return &PendingQueue{max: max, log: logger}
}

// Push appends samples up to the ceiling and reports how many were
// accepted.
func (q *PendingQueue) Push(samples []int) int {
	room := q.max - len(q.samples)
	if room <= 0 {
		q.saturate(len(samples))
		return 0
	}
	accepted := len(samples)
	if accepted > room {
		q.saturate(accepted - room)
		accepted = room
	}
	q.samples = append(q.samples, samples[:accepted]...)
	return accepted
}

func (q *PendingQueue) saturate(dropped int) {
	q.dropped += uint64(dropped)
	if !q.saturated {
		q.saturated = true
		q.log.Warn().Int("max", q.max).Msg("pending sample buffer saturating, dropping new samples until drained")
	}
}

// Drain returns all pending samples in arrival order and clears the
// saturation state.
func (q *PendingQueue) Drain() []int {
	out := q.samples
	q.samples = nil
	q.saturated = false
	return out
}

// Len returns the pending sample count.
func (q *PendingQueue) Len() int {
	return len(q.samples)
}

// Saturated reports whether the queue is currently refusing samples.
func (q *PendingQueue) Saturated() bool {
	return q.saturated
}

// Dropped returns the total number of samples lost to saturation.
func (q *PendingQueue) Dropped() uint64 {
	return q.dropped
}
