// Package bridge implements the packet framer's session engine: the
// reader loop, the dispatcher and its mandatory auto-ack rule, the
// command/response correlator, and the pairing workflow, all multiplexed
// over a single byte transport (sensebridge/transport).
package bridge

import (
	"sync/atomic"
	"time"

	"sensebridge/protocol"
	"sensebridge/transport"
)

// defaultTimeout bounds every command issued through doCommand unless a
// longer budget is explicitly needed (get_sensor_list, scan).
const defaultTimeout = 2 * time.Second

// EventCallback is invoked on the reader goroutine whenever a sensor
// alarm notification is decoded. It must not call back into Session
// operations — doing so deadlocks on the outbound mutex or awaits a
// completion signal that can never fire.
type EventCallback func(*Session, SensorEvent)

// Session is a live connection to one dongle. writeMu serializes outbound
// frames, so concurrent callers never interleave bytes on the wire. Whole
// commands are not serialized: commands issued concurrently from several
// goroutines are each in flight at once and are not isolated from one
// another in the handler registry.
type Session struct {
	transport transport.Transport
	registry  *registry
	writeMu   chan struct{} // 1-capacity semaphore, acquired/released like a mutex
	shutdown  int32         // atomic bool
	readerDone chan struct{}
	onEvent   EventCallback

	// Populated during start(); stable for the life of the session.
	MAC           string
	Version       string
	ENR           [16]byte
	InquiryResult byte
}

// Open performs the handshake against an already-open transport
// and starts the reader loop. onEvent may be nil if the caller has no
// interest in sensor alarms. On any startup failure the session is torn
// down and a non-nil error is returned.
func Open(t transport.Transport, onEvent EventCallback) (*Session, error) {
	s := &Session{
		transport:  t,
		registry:   newRegistry(),
		writeMu:    make(chan struct{}, 1),
		readerDone: make(chan struct{}),
		onEvent:    onEvent,
	}
	s.writeMu <- struct{}{}

	s.registerPermanentHandlers()
	go s.readerLoop()

	if err := s.start(); err != nil {
		s.Stop()
		return nil, err
	}
	return s, nil
}

// start runs the fixed startup sequence. Any failed step, including a
// timeout or a zero inquiry byte, is fatal to Open.
func (s *Session) start() error {
	inquiryByte, err := s.inquiry()
	if err != nil {
		return &StartError{Op: "inquiry", Err: err}
	}
	s.InquiryResult = inquiryByte
	if inquiryByte == 0 {
		return &StartError{Op: "inquiry", Err: &ErrProtocolViolation{Op: "inquiry", Msg: "dongle returned zero"}}
	}

	enr, err := s.getENR([4]uint32{0x30303030, 0x30303030, 0x30303030, 0x30303030})
	if err != nil {
		return &StartError{Op: "get_enr", Err: err}
	}
	s.ENR = enr

	mac, err := s.getMAC()
	if err != nil {
		return &StartError{Op: "get_mac", Err: err}
	}
	s.MAC = mac

	version, err := s.getVersion()
	if err != nil {
		return &StartError{Op: "get_version", Err: err}
	}
	s.Version = version

	if err := s.finishAuth(); err != nil {
		return &StartError{Op: "finish_auth", Err: err}
	}

	return nil
}

// List returns the MACs of every sensor currently paired to the dongle.
func (s *Session) List() ([]string, error) {
	count, err := s.getSensorCount()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	return s.getSensorList(count, defaultTimeout*time.Duration(count))
}

// Delete unpairs the sensor at mac. It returns false (not an error) when
// the dongle's acknowledgement does not confirm the deletion — this is a
// protocol-level outcome, not a session failure.
func (s *Session) Delete(mac string) (bool, error) {
	return s.deleteSensor(mac)
}

// Stop tears the session down: sets the shutdown flag, closes the
// transport (so any pending read fails promptly), and waits for the
// reader goroutine to exit. The transport is closed even when the reader
// has already stopped on a fatal read error. Safe to call more than once:
// Transport.Close is idempotent, so later calls have no further effect.
func (s *Session) Stop() error {
	atomic.StoreInt32(&s.shutdown, 1)
	err := s.transport.Close()
	<-s.readerDone
	return err
}

func (s *Session) isShutdown() bool {
	return atomic.LoadInt32(&s.shutdown) != 0
}

// writeRaw serializes access to the outbound byte stream. Both
// caller-issued commands and the dispatcher's auto-ack take this lock,
// so two outbound frames are never interleaved on the wire.
func (s *Session) writeRaw(data []byte) error {
	<-s.writeMu
	defer func() { s.writeMu <- struct{}{} }()
	return s.transport.WritePacket(data)
}

func (s *Session) send(p protocol.Packet) error {
	return s.writeRaw(protocol.Serialize(p))
}
