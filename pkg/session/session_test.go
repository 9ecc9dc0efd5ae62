package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/herlein/gomca/pkg/mcaconf"
	"github.com/herlein/gomca/pkg/spectrum"
)

// fakeLink replays scripted chunks, then idles (or fails, when
// readErr is set).
type fakeLink struct {
	mu      sync.Mutex
	open    bool
	chunks  [][]byte
	next    int
	readErr error
	writes  []string
	closes  int
}

func (f *fakeLink) Open(baud int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = true
	return nil
}

func (f *fakeLink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
	f.closes++
	return nil
}

func (f *fakeLink) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	if f.next < len(f.chunks) {
		chunk := f.chunks[f.next]
		f.next++
		f.mu.Unlock()
		return chunk, nil
	}
	err := f.readErr
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	time.Sleep(time.Millisecond)
	return nil, nil // idle timeout
}

func (f *fakeLink) Write(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, string(p))
	return nil
}

func (f *fakeLink) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeLink) String() string { return "fake" }

func (f *fakeLink) Matches(handle string) bool { return handle == "fake" }

func testSettings(channels int) mcaconf.Settings {
	cfg := mcaconf.Defaults()
	cfg.ADCChannels = channels
	return cfg
}

// waitFor polls until the condition holds or the test deadline hits.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestStart_SecondStartRefused(t *testing.T) {
	t.Parallel()

	r, err := New(&fakeLink{}, testSettings(100), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background(), spectrum.Data, ModeChronological); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	defer r.Stop()

	if err := r.Start(context.Background(), spectrum.Data, ModeChronological); !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("expected ErrAlreadyRecording, got %v", err)
	}
	if r.State() != StateRecording {
		t.Fatalf("refused start must not change state, got %v", r.State())
	}
}

func TestChronologicalFlow(t *testing.T) {
	t.Parallel()

	l := &fakeLink{chunks: [][]byte{[]byte("10;20;30;40;")}}
	r, err := New(l, testSettings(100), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background(), spectrum.Data, ModeChronological); err != nil {
		t.Fatal(err)
	}

	// 10 is the discarded head segment; 20 and 30 complete; 40 waits.
	waitFor(t, "pending samples", func() bool {
		n, _ := r.Pending()
		return n == 2
	})

	if n := r.Drain(); n != 2 {
		t.Fatalf("expected drain of 2, got %d", n)
	}
	snap := r.Spectrum()
	if snap.Data[20] != 1 || snap.Data[30] != 1 {
		t.Fatalf("unexpected bins after drain: 20=%d 30=%d", snap.Data[20], snap.Data[30])
	}

	if err := r.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if r.State() != StateIdle {
		t.Fatalf("expected idle after stop, got %v", r.State())
	}
	if l.IsOpen() {
		t.Fatalf("stop must close the link")
	}
}

func TestHistogramFlow(t *testing.T) {
	t.Parallel()

	l := &fakeLink{chunks: [][]byte{
		[]byte("0;0;0\n"),
		[]byte("1;2;3\n"),
	}}
	r, err := New(l, testSettings(3), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background(), spectrum.Data, ModeHistogram); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	// First row is the baseline; the second emits its delta directly.
	waitFor(t, "histogram delta applied", func() bool {
		return r.Spectrum().Total(spectrum.Data) == 6
	})

	snap := r.Spectrum()
	want := []int{1, 2, 3}
	for i := range want {
		if snap.Data[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, snap.Data)
		}
	}
}

func TestDisconnect_SurfacesStateNotError(t *testing.T) {
	t.Parallel()

	l := &fakeLink{readErr: errors.New("device unplugged")}
	r, err := New(l, testSettings(100), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	gotErr := make(chan error, 1)
	r.OnDisconnect(func(err error) { gotErr <- err })

	if err := r.Start(context.Background(), spectrum.Data, ModeChronological); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-gotErr:
		if err == nil {
			t.Fatalf("expected the link error in the callback")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("disconnect callback never fired")
	}

	waitFor(t, "disconnected state", func() bool { return r.State() == StateDisconnected })
	if l.IsOpen() {
		t.Fatalf("disconnect must close the link")
	}

	// Stop after a disconnect is a normal cleanup, not an error.
	if err := r.Stop(); err != nil {
		t.Fatalf("stop after disconnect failed: %v", err)
	}
}

func TestPauseResume_PreservesSpectrum(t *testing.T) {
	t.Parallel()

	l := &fakeLink{chunks: [][]byte{[]byte("0;5;5;")}}
	r, err := New(l, testSettings(10), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background(), spectrum.Data, ModeChronological); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "sample queued", func() bool {
		n, _ := r.Pending()
		return n >= 1
	})
	r.Drain()

	if err := r.Pause(); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if r.State() != StatePaused {
		t.Fatalf("expected paused, got %v", r.State())
	}
	if l.IsOpen() {
		t.Fatalf("pause must close the link")
	}

	before := r.Spectrum()
	if before.Total(spectrum.Data) == 0 {
		t.Fatalf("pause must preserve accumulated counts")
	}

	if err := r.Resume(context.Background()); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if r.State() != StateRecording {
		t.Fatalf("expected recording after resume, got %v", r.State())
	}

	after := r.Spectrum()
	if after.Total(spectrum.Data) != before.Total(spectrum.Data) {
		t.Fatalf("resume must not reset the spectrum")
	}

	if err := r.Stop(); err != nil {
		t.Fatal(err)
	}
}

func TestResume_RequiresPausedState(t *testing.T) {
	t.Parallel()

	r, err := New(&fakeLink{}, testSettings(100), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Resume(context.Background()); !errors.Is(err, ErrNotPaused) {
		t.Fatalf("expected ErrNotPaused, got %v", err)
	}
}

func TestStop_WithoutSession(t *testing.T) {
	t.Parallel()

	r, err := New(&fakeLink{}, testSettings(100), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Stop(); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("expected ErrNotRecording, got %v", err)
	}
}

func TestSend_AppendsEOL(t *testing.T) {
	t.Parallel()

	l := &fakeLink{open: true}
	r, err := New(l, testSettings(100), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Send("reset"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if len(l.writes) != 1 || l.writes[0] != "reset\n" {
		t.Fatalf("unexpected writes: %q", l.writes)
	}
}

func TestStartAfterStop_ClearsTarget(t *testing.T) {
	t.Parallel()

	l := &fakeLink{chunks: [][]byte{[]byte("0;5;5;")}}
	r, err := New(l, testSettings(10), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background(), spectrum.Data, ModeChronological); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "sample queued", func() bool {
		n, _ := r.Pending()
		return n >= 1
	})
	if err := r.Stop(); err != nil {
		t.Fatal(err)
	}
	if r.Spectrum().Total(spectrum.Data) == 0 {
		t.Fatalf("stop must finalize pending samples into the spectrum")
	}

	// A fresh Start is a new recording, not a continuation.
	if err := r.Start(context.Background(), spectrum.Data, ModeChronological); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()
	if r.Spectrum().Total(spectrum.Data) != 0 {
		t.Fatalf("new recording must start from an empty spectrum")
	}
}

func TestTrace_RawAxis(t *testing.T) {
	t.Parallel()

	r, err := New(&fakeLink{}, testSettings(4), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	r.mu.Lock()
	r.spec.AddCounts(spectrum.Data, []int{1, 1, 3}, 4)
	r.mu.Unlock()

	xs, ys, calibrated := r.Trace(spectrum.Data, nil)
	if calibrated {
		t.Fatalf("nil calibration must yield a raw axis")
	}
	if len(xs) != 4 || xs[3] != 3 {
		t.Fatalf("unexpected axis: %v", xs)
	}
	if ys[1] != 2 || ys[3] != 1 {
		t.Fatalf("unexpected counts: %v", ys)
	}
}
