package bridge

import (
	"log"
	"time"

	"sensebridge/protocol"
)

// sensorR1 is the fixed challenge literal the dongle expects during
// pairing; it never varies between sensors or sessions.
var sensorR1 = [16]byte{'O', 'k', '5', 'H', 'P', 'N', 'Q', '4', 'l', 'f', '7', '7', 'u', '7', '5', '4'}

// ScanResult is the outcome of a pairing scan in which a sensor announced
// itself. verify_sensor was issued for it, but a failed verification is
// only logged and does not withhold the result.
type ScanResult struct {
	MAC     string
	Type    byte
	Version byte
}

// Scan runs the pairing workflow: enable scanning, wait up to
// timeout for a NOTIFY_SENSOR_SCAN announcement, always disable scanning
// afterward regardless of outcome, and when a sensor was announced,
// challenge and verify it before returning. A timeout waiting for an
// announcement is reported by returning (nil, nil): no sensor appeared,
// which is not itself a session failure.
func (s *Session) Scan(timeout time.Duration) (*ScanResult, error) {
	type announcement struct {
		mac     string
		kind    byte
		version byte
	}
	announced := make(chan announcement, 1)
	prev, had := s.registry.install(protocol.NotifySensorScan, func(p protocol.Packet) {
		if len(p.Payload) < 11 {
			return
		}
		a := announcement{
			mac:     string(p.Payload[1:9]),
			kind:    p.Payload[9],
			version: p.Payload[10],
		}
		select {
		case announced <- a:
		default:
		}
	})
	defer s.registry.restore(protocol.NotifySensorScan, prev, had)

	if err := s.enableScan(true); err != nil {
		if err == ErrTimeout {
			return nil, nil
		}
		return nil, err
	}

	var a announcement
	var announcedOK bool
	select {
	case a = <-announced:
		announcedOK = true
	case <-time.After(timeout):
	}

	if announcedOK {
		if err := s.getSensorR1(a.mac, sensorR1); err != nil {
			log.Printf("bridge: get_sensor_r1 timed out or failed for %s: %v", a.mac, err)
		}
	}

	// enable_scan(false) must run before verify_sensor: the dongle's
	// scanning state and its pairing-verification state are independent,
	// but the wire sequence always closes the scan window first.
	if err := s.enableScan(false); err != nil {
		log.Printf("bridge: failed to disable scan: %v", err)
	}

	if !announcedOK {
		return nil, nil
	}

	if err := s.verifySensor(a.mac); err != nil {
		log.Printf("bridge: verify_sensor timed out or failed for %s: %v", a.mac, err)
	}

	return &ScanResult{MAC: a.mac, Type: a.kind, Version: a.version}, nil
}
