package link

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/gousb"
)

// CDC-ACM class requests used to configure the bridge chip.
const (
	cdcReqTypeOut          = 0x21 // host-to-device, class, interface
	cdcSetLineCoding       = 0x20
	cdcSetControlLineState = 0x22
	cdcDTRRTSEnabled       = 0x0003
)

const bridgeReadBufSize = 4096

// BridgeLink drives a USB-to-serial bridge (CDC-ACM style) directly
// over gousb, for hosts where no tty device node is exposed.
type BridgeLink struct {
	usbCtx *gousb.Context
	vid    gousb.ID
	pid    gousb.ID

	dev   *gousb.Device
	cfg   *gousb.Config
	intf  *gousb.Interface
	epIn  *gousb.InEndpoint
	epOut *gousb.OutEndpoint

	serialNum   string
	product     string
	readTimeout time.Duration
	readBuf     []byte
	baud        int
}

// NewBridgeLink creates a link for the first attached device matching
// the vendor/product pair. The gousb context is owned by the caller.
func NewBridgeLink(usbCtx *gousb.Context, vid, pid uint16) *BridgeLink {
	return &BridgeLink{
		usbCtx:      usbCtx,
		vid:         gousb.ID(vid),
		pid:         gousb.ID(pid),
		readTimeout: DefaultReadTimeout,
		readBuf:     make([]byte, bridgeReadBufSize),
	}
}

// Open claims the bridge and programs its line coding for the given
// baud rate, 8N1.
func (l *BridgeLink) Open(baud int) error {
	if l.dev != nil {
		return ErrAlreadyOpen
	}

	dev, err := l.usbCtx.OpenDeviceWithVIDPID(l.vid, l.pid)
	if err != nil {
		return fmt.Errorf("failed to open device %s:%s: %w", l.vid, l.pid, err)
	}
	if dev == nil {
		return fmt.Errorf("%w: %s:%s", ErrNoDevice, l.vid, l.pid)
	}

	dev.SetAutoDetach(true)

	l.serialNum, _ = dev.SerialNumber()
	l.product, _ = dev.Product()

	cfg, err := dev.Config(1)
	if err != nil {
		dev.Close()
		return fmt.Errorf("failed to get configuration: %w", err)
	}

	intf, epIn, epOut, err := claimBulkInterface(cfg)
	if err != nil {
		cfg.Close()
		dev.Close()
		return err
	}

	l.dev = dev
	l.cfg = cfg
	l.intf = intf
	l.epIn = epIn
	l.epOut = epOut
	l.baud = baud

	// dwDTERate (LE), 1 stop bit, no parity, 8 data bits.
	lineCoding := []byte{
		byte(baud), byte(baud >> 8), byte(baud >> 16), byte(baud >> 24),
		0, 0, 8,
	}
	if _, err := dev.Control(cdcReqTypeOut, cdcSetLineCoding, 0, 0, lineCoding); err != nil {
		l.Close()
		return fmt.Errorf("failed to set line coding: %w", err)
	}
	if _, err := dev.Control(cdcReqTypeOut, cdcSetControlLineState, cdcDTRRTSEnabled, 0, nil); err != nil {
		l.Close()
		return fmt.Errorf("failed to assert DTR/RTS: %w", err)
	}

	// Discard whatever the bridge buffered before we attached.
	l.drainStale()

	return nil
}

// claimBulkInterface finds the first interface exposing a bulk IN and
// a bulk OUT endpoint (the CDC data interface).
func claimBulkInterface(cfg *gousb.Config) (*gousb.Interface, *gousb.InEndpoint, *gousb.OutEndpoint, error) {
	for _, ifDesc := range cfg.Desc.Interfaces {
		for _, alt := range ifDesc.AltSettings {
			inNum, outNum := -1, -1
			for _, ep := range alt.Endpoints {
				if ep.TransferType != gousb.TransferTypeBulk {
					continue
				}
				if ep.Direction == gousb.EndpointDirectionIn {
					inNum = ep.Number
				} else {
					outNum = ep.Number
				}
			}
			if inNum < 0 || outNum < 0 {
				continue
			}

			intf, err := cfg.Interface(ifDesc.Number, alt.Alternate)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("failed to claim interface %d: %w", ifDesc.Number, err)
			}
			epIn, err := intf.InEndpoint(inNum)
			if err != nil {
				intf.Close()
				return nil, nil, nil, fmt.Errorf("failed to get IN endpoint: %w", err)
			}
			epOut, err := intf.OutEndpoint(outNum)
			if err != nil {
				intf.Close()
				return nil, nil, nil, fmt.Errorf("failed to get OUT endpoint: %w", err)
			}
			return intf, epIn, epOut, nil
		}
	}
	return nil, nil, nil, fmt.Errorf("%w: no bulk data interface", ErrNoDevice)
}

// drainStale reads and discards data left over from a previous
// session, so a new recording starts from a clean stream.
func (l *BridgeLink) drainStale() {
	buf := make([]byte, bridgeReadBufSize)
	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		n, err := l.epIn.ReadContext(ctx, buf)
		cancel()
		if err != nil || n == 0 {
			break
		}
	}
}

// Close releases the interface, configuration and device. Idempotent;
// an unplugged device closing with errors is still a clean disconnect.
func (l *BridgeLink) Close() error {
	if l.dev == nil {
		return nil
	}
	if l.intf != nil {
		l.intf.Close()
		l.intf = nil
	}
	if l.cfg != nil {
		_ = l.cfg.Close()
		l.cfg = nil
	}
	_ = l.dev.Close()
	l.dev = nil
	l.epIn = nil
	l.epOut = nil
	return nil
}

// Read returns whatever bytes arrive within one idle timeout. An
// empty result with a nil error means no data yet.
func (l *BridgeLink) Read(ctx context.Context) ([]byte, error) {
	if l.dev == nil {
		return nil, ErrNotOpen
	}

	readCtx, cancel := context.WithTimeout(ctx, l.readTimeout)
	defer cancel()

	n, err := l.epIn.ReadContext(readCtx, l.readBuf)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) ||
			errors.Is(err, gousb.TransferTimedOut) || errors.Is(err, gousb.ErrorTimeout) {
			return nil, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("bulk read failed: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	chunk := make([]byte, n)
	copy(chunk, l.readBuf[:n])
	return chunk, nil
}

// Write sends the payload over the bulk OUT endpoint.
func (l *BridgeLink) Write(p []byte) error {
	if l.dev == nil {
		return ErrNotOpen
	}
	if _, err := l.epOut.Write(p); err != nil {
		return fmt.Errorf("bulk write failed: %w", err)
	}
	return nil
}

// IsOpen reports whether the device is claimed.
func (l *BridgeLink) IsOpen() bool {
	return l.dev != nil
}

func (l *BridgeLink) String() string {
	id := fmt.Sprintf("%s:%s", l.vid, l.pid)
	if l.product != "" {
		id = fmt.Sprintf("%s (%s)", id, l.product)
	}
	if l.serialNum != "" {
		id = fmt.Sprintf("%s sn=%s", id, l.serialNum)
	}
	return "usb " + id
}

// Matches reports whether the handle names this device, either by
// serial number or by the vid:pid pair.
func (l *BridgeLink) Matches(handle string) bool {
	if l.serialNum != "" && handle == l.serialNum {
		return true
	}
	return handle == fmt.Sprintf("%s:%s", l.vid, l.pid)
}
