package link

import (
	"context"
	"fmt"
	"time"

	"go.bug.st/serial"
)

// DefaultReadTimeout bounds how long a single Read waits for the
// first byte before reporting "no data yet".
const DefaultReadTimeout = 100 * time.Millisecond

const serialReadBufSize = 4096

// SerialLink drives a native serial port via go.bug.st/serial.
type SerialLink struct {
	portName    string
	readTimeout time.Duration
	port        serial.Port
	readBuf     []byte
	baud        int
}

// NewSerialLink creates a link for the named port. Nothing is opened
// until Open is called.
func NewSerialLink(portName string) *SerialLink {
	return &SerialLink{
		portName:    portName,
		readTimeout: DefaultReadTimeout,
		readBuf:     make([]byte, serialReadBufSize),
	}
}

// SetReadTimeout overrides the idle read timeout. Must be called
// before Open.
func (l *SerialLink) SetReadTimeout(d time.Duration) {
	l.readTimeout = d
}

// Open opens the port at the given baud rate, 8N1.
func (l *SerialLink) Open(baud int) error {
	if l.port != nil {
		return ErrAlreadyOpen
	}

	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(l.portName, mode)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", l.portName, err)
	}
	if err := port.SetReadTimeout(l.readTimeout); err != nil {
		port.Close()
		return fmt.Errorf("failed to set read timeout on %s: %w", l.portName, err)
	}

	l.port = port
	l.baud = baud
	return nil
}

// Close closes the port. Closing an already-closed or unplugged port
// is a no-op: the peer going away is a normal disconnect.
func (l *SerialLink) Close() error {
	if l.port == nil {
		return nil
	}
	port := l.port
	l.port = nil
	// The close error of a vanished device carries no information the
	// caller can act on.
	_ = port.Close()
	return nil
}

// Read returns whatever bytes arrive within one idle timeout. An
// empty result with a nil error means no data yet.
func (l *SerialLink) Read(ctx context.Context) ([]byte, error) {
	if l.port == nil {
		return nil, ErrNotOpen
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n, err := l.port.Read(l.readBuf)
	if err != nil {
		return nil, fmt.Errorf("read on %s failed: %w", l.portName, err)
	}
	if n == 0 {
		return nil, nil
	}
	chunk := make([]byte, n)
	copy(chunk, l.readBuf[:n])
	return chunk, nil
}

// Write sends the payload to the device.
func (l *SerialLink) Write(p []byte) error {
	if l.port == nil {
		return ErrNotOpen
	}
	if _, err := l.port.Write(p); err != nil {
		return fmt.Errorf("write on %s failed: %w", l.portName, err)
	}
	return nil
}

// IsOpen reports whether the port is open.
func (l *SerialLink) IsOpen() bool {
	return l.port != nil
}

func (l *SerialLink) String() string {
	if l.baud > 0 {
		return fmt.Sprintf("serial %s @ %d baud", l.portName, l.baud)
	}
	return fmt.Sprintf("serial %s", l.portName)
}

// Matches reports whether this link wraps the given port name.
func (l *SerialLink) Matches(handle string) bool {
	return handle == l.portName
}

// ListPorts enumerates candidate serial port names on this host.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	return ports, nil
}
