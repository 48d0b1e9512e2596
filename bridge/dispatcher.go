package bridge

import (
	"encoding/binary"
	"log"
	"time"

	"sensebridge/protocol"
)

// dispatch runs on the reader goroutine for every successfully parsed
// packet. Any ASYNC packet other than ASYNC_ACK itself must be
// acknowledged before the handler runs; SYNC responses and the ack
// packet itself are handed straight to the registered handler, if any.
func (s *Session) dispatch(p protocol.Packet) {
	if p.Class() == protocol.ClassAsync && !p.IsAsyncAck() {
		if err := s.send(protocol.NewAck(p.Command)); err != nil {
			log.Printf("bridge: failed to ack command %#04x: %v", p.Command, err)
		}
	}

	h, ok := s.registry.lookup(p.Command)
	if !ok {
		return
	}
	h(p)
}

// registerPermanentHandlers installs the handlers that live for the
// whole session: the notifications the dongle can send at any time that
// are not responses to a host-issued command.
func (s *Session) registerPermanentHandlers() {
	s.registry.set(protocol.NotifySyncTime, s.handleSyncTime)
	s.registry.set(protocol.NotifySensorAlarm, s.handleSensorAlarm)
	s.registry.set(protocol.NotifyEventLog, s.handleEventLog)
}

// handleSyncTime answers the dongle's clock-sync request with the host's
// current time, in milliseconds since the Unix epoch, big-endian.
func (s *Session) handleSyncTime(protocol.Packet) {
	payload := make([]byte, 8)
	binary.BigEndian.PutUint64(payload, uint64(time.Now().UnixMilli()))
	if err := s.send(protocol.Packet{Command: protocol.ReplySyncTime, Payload: payload}); err != nil {
		log.Printf("bridge: failed to answer sync_time: %v", err)
	}
}

func (s *Session) handleSensorAlarm(p protocol.Packet) {
	event, ok := decodeSensorEvent(p.Payload)
	if !ok {
		log.Printf("bridge: dropped undersized sensor alarm payload (%d bytes)", len(p.Payload))
		return
	}
	if s.onEvent != nil {
		s.onEvent(s, event)
	}
}

// handleEventLog decodes the dongle's free-form diagnostic log records
// (ts uint64 BE, len byte, message) and surfaces them through the
// standard logger; nothing about them is actionable by the session.
func (s *Session) handleEventLog(p protocol.Packet) {
	if len(p.Payload) < 9 {
		return
	}
	ts := time.UnixMilli(int64(binary.BigEndian.Uint64(p.Payload[0:8])))
	n := int(p.Payload[8])
	msg := p.Payload[9:]
	if n < len(msg) {
		msg = msg[:n]
	}
	log.Printf("bridge: dongle event %s: %s", ts.Format(time.RFC3339), msg)
}
