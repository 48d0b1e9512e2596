//go:build linux

package transport

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// maxReportSize is the largest HID input report this link ever produces:
// a one-byte length prefix followed by up to 63 bytes of payload.
const maxReportSize = 64

// HIDRaw opens a Linux hidraw character device in non-blocking read/write
// mode. It implements Transport directly against the kernel hidraw
// interface, without going through libusb or hidapi: the dongle already
// enumerates as a HID device, so plain open/read/write on
// /dev/hidrawN is sufficient.
type HIDRaw struct {
	fd int
}

// OpenHIDRaw opens the hidraw device at path (e.g. "/dev/hidraw0").
func OpenHIDRaw(path string) (*HIDRaw, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", path, err)
	}
	return &HIDRaw{fd: fd}, nil
}

// ReadReport reads one HID input report and strips its leading length
// byte. A non-fatal short read (EAGAIN, or nothing yet buffered) yields
// an empty slice and a nil error so the reader loop can back off and
// retry; a fatal error is returned as-is.
func (h *HIDRaw) ReadReport() ([]byte, error) {
	buf := make([]byte, maxReportSize)
	n, err := unix.Read(h.fd, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil, nil
		}
		return nil, fmt.Errorf("transport: read: %w", err)
	}
	if n < 2 {
		return nil, nil
	}

	reportLen := int(buf[0])
	if reportLen > maxReportSize-1 {
		reportLen = maxReportSize - 1
	}
	payload := buf[1:n]
	if reportLen < len(payload) {
		payload = payload[:reportLen]
	}
	return payload, nil
}

// WritePacket writes data in a single syscall. The kernel hidraw driver
// either accepts the whole output report or rejects it; a short write
// without an error would indicate a condition the caller must not
// silently ignore.
func (h *HIDRaw) WritePacket(data []byte) error {
	n, err := unix.Write(h.fd, data)
	if err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	if n != len(data) {
		return fmt.Errorf("transport: short write: %d/%d bytes", n, len(data))
	}
	return nil
}

// Close releases the hidraw file descriptor. Safe to call more than once.
func (h *HIDRaw) Close() error {
	if h.fd < 0 {
		return nil
	}
	fd := h.fd
	h.fd = -1
	return unix.Close(fd)
}
