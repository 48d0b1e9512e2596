// Package transport defines the byte-transport boundary the bridge core
// depends on and provides a concrete Linux hidraw implementation.
package transport

// Transport is the abstraction the core session consumes. It knows
// nothing about framing; it moves raw bytes in and out of whatever
// character device backs the dongle link.
type Transport interface {
	// ReadReport blocks until one HID input report is available and
	// returns its content with the leading length-prefix byte stripped.
	// Implementations return an empty slice (not an error) on a
	// non-fatal short read so the reader can retry after a brief sleep.
	ReadReport() ([]byte, error)

	// WritePacket writes data in one atomic operation. A short write is
	// reported as an error.
	WritePacket(data []byte) error

	// Close releases the underlying handle. Idempotent.
	Close() error
}
