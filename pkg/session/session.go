// Package session drives one acquisition: it owns the read loop that
// pulls bytes off the link, feeds the framer and accumulates the
// spectrum, and it enforces the single-recording rule.
//
// All per-session state lives on the Recorder; there are no ambient
// globals, so a callback or a loop always knows which session it
// belongs to.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/herlein/gomca/pkg/calibration"
	"github.com/herlein/gomca/pkg/framing"
	"github.com/herlein/gomca/pkg/link"
	"github.com/herlein/gomca/pkg/mcaconf"
	"github.com/herlein/gomca/pkg/spectrum"
)

// Mode selects the wire encoding the device speaks.
type Mode int

const (
	// ModeChronological receives one pulse height per event.
	ModeChronological Mode = iota
	// ModeHistogram receives full cumulative per-channel snapshots.
	ModeHistogram
)

func (m Mode) String() string {
	if m == ModeHistogram {
		return "histogram"
	}
	return "chronological"
}

// State is the recorder lifecycle state.
type State int

const (
	// StateIdle means no recording is active or pending.
	StateIdle State = iota
	// StateRecording means the read loop is live.
	StateRecording
	// StatePaused means spectrum and live time are held for a resume.
	StatePaused
	// StateDisconnected means the link failed or the device vanished.
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	case StateDisconnected:
		return "disconnected"
	default:
		return "idle"
	}
}

// Recorder runs one acquisition session over a Link.
type Recorder struct {
	mu   sync.Mutex
	l    link.Link
	cfg  mcaconf.Settings
	log  zerolog.Logger
	spec *spectrum.Spectrum

	chrono  *framing.ChronoDecoder
	histo   *framing.HistoDecoder
	pending *spectrum.PendingQueue

	state  State
	mode   Mode
	target spectrum.Kind

	// recording is the loop's own continuation check; flipping it
	// makes the loop exit after its current read.
	recording    bool
	done         chan struct{}
	segmentStart time.Time

	onDisconnect func(error)
}

// New creates a Recorder. Settings are validated here so the pipeline
// never sees a bad knob.
func New(l link.Link, cfg mcaconf.Settings, logger zerolog.Logger) (*Recorder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	frameCfg := framing.Config{
		ADCChannels: cfg.ADCChannels,
		Delimiter:   cfg.Delimiter,
		EOL:         cfg.EOL,
		MaxFrameLen: cfg.MaxFrameLen,
		MaxRowLen:   cfg.MaxRowLen,
	}

	return &Recorder{
		l:       l,
		cfg:     cfg,
		log:     logger,
		spec:    spectrum.New(),
		chrono:  framing.NewChronoDecoder(frameCfg),
		histo:   framing.NewHistoDecoder(frameCfg),
		pending: spectrum.NewPendingQueue(cfg.MaxPending, logger),
	}, nil
}

// OnDisconnect registers a callback fired when the link fails during
// recording. Set it before Start.
func (r *Recorder) OnDisconnect(cb func(error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDisconnect = cb
}

// Start begins a new recording into the given target. The target's
// histogram, live time and framer state are reset; starting while a
// session is already live is refused, not stacked.
func (r *Recorder) Start(ctx context.Context, target spectrum.Kind, mode Mode) error {
	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return ErrAlreadyRecording
	}

	r.spec.Clear(target)
	r.chrono.Reset()
	r.histo.Reset()
	r.pending.Drain()

	if !r.l.IsOpen() {
		if err := r.l.Open(r.cfg.BaudRate); err != nil {
			r.mu.Unlock()
			return err
		}
	}

	r.target = target
	r.mode = mode
	r.recording = true
	r.state = StateRecording
	r.segmentStart = time.Now()
	r.done = make(chan struct{})
	done := r.done
	r.mu.Unlock()

	r.log.Info().Str("link", r.l.String()).Str("mode", mode.String()).
		Str("target", target.String()).Msg("recording started")

	go r.readLoop(ctx, done)
	return nil
}

// Resume continues a paused recording: the link is reopened and the
// loop restarted without touching the spectrum, live time or the
// histogram baseline.
func (r *Recorder) Resume(ctx context.Context) error {
	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return ErrAlreadyRecording
	}
	if r.state != StatePaused {
		r.mu.Unlock()
		return ErrNotPaused
	}

	if !r.l.IsOpen() {
		if err := r.l.Open(r.cfg.BaudRate); err != nil {
			r.mu.Unlock()
			return err
		}
	}

	r.recording = true
	r.state = StateRecording
	r.segmentStart = time.Now()
	r.done = make(chan struct{})
	done := r.done
	r.mu.Unlock()

	r.log.Info().Str("link", r.l.String()).Msg("recording resumed")

	go r.readLoop(ctx, done)
	return nil
}

// Pause stops the loop and closes the link but keeps the spectrum and
// accumulated live time for a later Resume.
func (r *Recorder) Pause() error {
	r.mu.Lock()
	if r.state != StateRecording {
		r.mu.Unlock()
		return ErrNotRecording
	}
	r.recording = false
	r.flushLiveTimeLocked()
	r.state = StatePaused
	done := r.done
	r.mu.Unlock()

	if done != nil {
		<-done
	}
	r.log.Info().Msg("recording paused")
	return r.l.Close()
}

// Stop ends the session: the loop exits, remaining pending samples
// are applied, live time is finalized and the link closed. The
// spectrum stays readable until the next Start.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	switch r.state {
	case StateRecording:
		r.recording = false
		r.flushLiveTimeLocked()
	case StatePaused, StateDisconnected:
	default:
		r.mu.Unlock()
		return ErrNotRecording
	}
	r.state = StateIdle
	done := r.done
	r.done = nil
	r.mu.Unlock()

	if done != nil {
		<-done
	}
	_ = r.l.Close()

	r.mu.Lock()
	r.applyPendingLocked()
	r.mu.Unlock()

	r.log.Info().Msg("recording stopped")
	return nil
}

// readLoop is the cooperative read-decode-accumulate loop. It owns no
// state of its own; everything lives on the Recorder so cancellation
// is just a flag flip plus one final read timeout.
func (r *Recorder) readLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for r.isRecording() && ctx.Err() == nil {
		chunk, err := r.l.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.disconnect(err)
			return
		}
		if len(chunk) == 0 {
			continue // idle timeout, no data yet
		}
		r.ingest(chunk)
	}
}

func (r *Recorder) isRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// ingest feeds one chunk through the framer. Histogram deltas apply
// immediately; chronological samples queue for the caller's drain.
// Updates apply strictly in arrival order.
func (r *Recorder) ingest(chunk []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.mode {
	case ModeHistogram:
		for _, delta := range r.histo.Feed(chunk) {
			r.spec.AddDeltas(r.target, delta, r.cfg.ADCChannels)
		}
	default:
		samples := r.chrono.Feed(chunk)
		if len(samples) > 0 {
			r.pending.Push(samples)
		}
	}
}

// disconnect converts a transport failure into a state transition.
// No raw link error escapes the session.
func (r *Recorder) disconnect(err error) {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return
	}
	r.recording = false
	r.flushLiveTimeLocked()
	r.state = StateDisconnected
	cb := r.onDisconnect
	r.mu.Unlock()

	_ = r.l.Close()
	r.log.Warn().Err(err).Str("link", r.l.String()).Msg("link lost, treating as disconnect")

	if cb != nil {
		cb(err)
	}
}

// Drain applies queued chronological samples to the spectrum and
// credits elapsed live time. Call it on a timer; the session never
// schedules recomputation itself.
func (r *Recorder) Drain() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applyPendingLocked()
}

func (r *Recorder) applyPendingLocked() int {
	samples := r.pending.Drain()
	if len(samples) > 0 {
		r.spec.AddCounts(r.target, samples, r.cfg.ADCChannels)
	}
	r.flushLiveTimeLocked()
	return len(samples)
}

// flushLiveTimeLocked credits the running segment to the target.
func (r *Recorder) flushLiveTimeLocked() {
	if r.state != StateRecording {
		return
	}
	now := time.Now()
	r.spec.AddLiveTime(r.target, now.Sub(r.segmentStart).Milliseconds())
	r.segmentStart = now
}

// Send writes a command string plus the configured EOL to the device.
func (r *Recorder) Send(cmd string) error {
	return r.l.Write([]byte(cmd + r.cfg.EOL))
}

// State returns the current lifecycle state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Spectrum returns a snapshot copy of the accumulated spectrum.
func (r *Recorder) Spectrum() spectrum.Spectrum {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := spectrum.Spectrum{
		DataTimeMs:       r.spec.DataTimeMs,
		BackgroundTimeMs: r.spec.BackgroundTimeMs,
	}
	snap.Data = append([]int(nil), r.spec.Data...)
	snap.Background = append([]int(nil), r.spec.Background...)
	return snap
}

// Trace returns the renderer-facing x/y arrays for a target. With an
// enabled calibration the x axis is in energy units, otherwise it is
// the raw channel index; the second return reports which one it is.
func (r *Recorder) Trace(k spectrum.Kind, cal *calibration.Calibration) (xs, ys []float64, calibrated bool) {
	snap := r.Spectrum()

	bins := snap.Data
	if k == spectrum.Background {
		bins = snap.Background
	}

	ys = make([]float64, len(bins))
	for i, v := range bins {
		ys[i] = float64(v)
	}

	if cal != nil && cal.Enabled() {
		return cal.MapAxis(len(bins)), ys, true
	}
	xs = make([]float64, len(bins))
	for i := range xs {
		xs[i] = float64(i)
	}
	return xs, ys, false
}

// Stats returns the framer drop diagnostics for the active mode.
func (r *Recorder) Stats() framing.Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mode == ModeHistogram {
		return r.histo.Stats()
	}
	return r.chrono.Stats()
}

// Pending returns the undrained sample count and whether the queue is
// saturated.
func (r *Recorder) Pending() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending.Len(), r.pending.Saturated()
}
