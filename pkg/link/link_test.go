package link

import (
	"context"
	"errors"
	"testing"
)

func TestSerialLink_NotOpenErrors(t *testing.T) {
	t.Parallel()

	l := NewSerialLink("/dev/ttyUSB0")
	if l.IsOpen() {
		t.Fatalf("new link must not be open")
	}
	if _, err := l.Read(context.Background()); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen from Read, got %v", err)
	}
	if err := l.Write([]byte("x")); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen from Write, got %v", err)
	}
}

func TestSerialLink_CloseIdempotent(t *testing.T) {
	t.Parallel()

	l := NewSerialLink("/dev/ttyUSB0")
	if err := l.Close(); err != nil {
		t.Fatalf("close on never-opened link failed: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
}

func TestSerialLink_Matches(t *testing.T) {
	t.Parallel()

	l := NewSerialLink("/dev/ttyACM1")
	if !l.Matches("/dev/ttyACM1") {
		t.Fatalf("expected match on own port name")
	}
	if l.Matches("/dev/ttyACM0") {
		t.Fatalf("unexpected match on a different port")
	}
}

func TestBridgeLink_MatchesVidPid(t *testing.T) {
	t.Parallel()

	l := NewBridgeLink(nil, 0x10c4, 0xea60)
	if !l.Matches("10c4:ea60") {
		t.Fatalf("expected vid:pid match, String()=%q", l.String())
	}
	if l.Matches("dead:beef") {
		t.Fatalf("unexpected match")
	}
}
