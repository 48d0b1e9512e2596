package bridge

import (
	"encoding/binary"
	"log"
	"time"

	"sensebridge/protocol"
)

// doCommand is the generalized request/response correlator used by every
// host-initiated command. It installs a
// transient handler under the expected response command, sends the
// request, waits for either the handler to fire or the timeout to elapse,
// and restores whatever handler occupied that slot beforehand regardless
// of outcome.
func (s *Session) doCommand(req protocol.Packet, respCmd uint16, timeout time.Duration) (protocol.Packet, error) {
	done := make(chan protocol.Packet, 1)
	handler := func(p protocol.Packet) {
		select {
		case done <- p:
		default:
		}
	}

	prev, had := s.registry.install(respCmd, handler)
	defer s.registry.restore(respCmd, prev, had)

	if err := s.send(req); err != nil {
		return protocol.Packet{}, err
	}

	select {
	case resp := <-done:
		return resp, nil
	case <-time.After(timeout):
		return protocol.Packet{}, ErrTimeout
	}
}

func (s *Session) inquiry() (byte, error) {
	resp, err := s.doCommand(protocol.Packet{Command: protocol.CmdInquiry}, protocol.RespInquiry, defaultTimeout)
	if err != nil {
		return 0, err
	}
	if len(resp.Payload) < 1 {
		return 0, &ErrProtocolViolation{Op: "inquiry", Msg: "empty response payload"}
	}
	return resp.Payload[0], nil
}

func (s *Session) getENR(words [4]uint32) ([16]byte, error) {
	payload := make([]byte, 16)
	for i, w := range words {
		binary.LittleEndian.PutUint32(payload[i*4:], w)
	}
	resp, err := s.doCommand(protocol.Packet{Command: protocol.CmdGetENR, Payload: payload}, protocol.RespGetENR, defaultTimeout)
	if err != nil {
		return [16]byte{}, err
	}
	var enr [16]byte
	if len(resp.Payload) < 16 {
		return enr, &ErrProtocolViolation{Op: "get_enr", Msg: "short response payload"}
	}
	copy(enr[:], resp.Payload[:16])
	return enr, nil
}

func (s *Session) getMAC() (string, error) {
	resp, err := s.doCommand(protocol.Packet{Command: protocol.CmdGetMAC}, protocol.RespGetMAC, defaultTimeout)
	if err != nil {
		return "", err
	}
	if len(resp.Payload) < 8 {
		return "", &ErrProtocolViolation{Op: "get_mac", Msg: "short response payload"}
	}
	return string(resp.Payload[:8]), nil
}

// Key fetches the dongle's 16-byte authentication key. It is not part
// of the fixed startup sequence; callers that need it issue it
// explicitly.
func (s *Session) Key() ([16]byte, error) {
	resp, err := s.doCommand(protocol.Packet{Command: protocol.CmdGetKey}, protocol.RespGetKey, defaultTimeout)
	if err != nil {
		return [16]byte{}, err
	}
	var key [16]byte
	if len(resp.Payload) < 16 {
		return key, &ErrProtocolViolation{Op: "get_key", Msg: "short response payload"}
	}
	copy(key[:], resp.Payload[:16])
	return key, nil
}

func (s *Session) getVersion() (string, error) {
	resp, err := s.doCommand(protocol.Packet{Command: protocol.CmdGetVersion}, protocol.RespGetVersion, defaultTimeout)
	if err != nil {
		return "", err
	}
	return string(resp.Payload), nil
}

func (s *Session) finishAuth() error {
	_, err := s.doCommand(protocol.Packet{Command: protocol.CmdFinishAuth, Payload: []byte{0xFF}}, protocol.RespFinishAuth, defaultTimeout)
	return err
}

func (s *Session) getSensorCount() (byte, error) {
	resp, err := s.doCommand(protocol.Packet{Command: protocol.CmdGetSensorCount}, protocol.RespGetSensorCount, defaultTimeout)
	if err != nil {
		return 0, err
	}
	if len(resp.Payload) < 1 {
		return 0, &ErrProtocolViolation{Op: "get_sensor_count", Msg: "empty response payload"}
	}
	return resp.Payload[0], nil
}

// getSensorList accumulates n response packets, each an 8-byte MAC, under
// a single install (the dongle streams one RespGetSensorList packet per
// paired sensor). It is given a longer timeout than a single command
// since the dongle emits the whole list at its own pace.
func (s *Session) getSensorList(n byte, timeout time.Duration) ([]string, error) {
	if n == 0 {
		return nil, nil
	}

	type result struct {
		mac string
		err error
	}
	out := make(chan result, n)
	handler := func(p protocol.Packet) {
		if len(p.Payload) != 8 {
			out <- result{err: &ErrProtocolViolation{Op: "get_sensor_list", Msg: "response payload was not exactly 8 bytes"}}
			return
		}
		out <- result{mac: string(p.Payload)}
	}

	prev, had := s.registry.install(protocol.RespGetSensorList, handler)
	defer s.registry.restore(protocol.RespGetSensorList, prev, had)

	if err := s.send(protocol.Packet{Command: protocol.CmdGetSensorList, Payload: []byte{n}}); err != nil {
		return nil, err
	}

	deadline := time.After(timeout)
	macs := make([]string, 0, n)
	for i := byte(0); i < n; i++ {
		select {
		case r := <-out:
			if r.err != nil {
				return macs, r.err
			}
			macs = append(macs, r.mac)
		case <-deadline:
			return macs, ErrTimeout
		}
	}
	return macs, nil
}

// enableScan toggles the dongle's pairing-scan mode.
func (s *Session) enableScan(enable bool) error {
	payload := []byte{0}
	if enable {
		payload[0] = 1
	}
	_, err := s.doCommand(protocol.Packet{Command: protocol.CmdEnableScan, Payload: payload}, protocol.RespEnableScan, defaultTimeout)
	return err
}

// getSensorR1 issues the fixed literal challenge to a just-announced
// sensor as the second step of pairing.
func (s *Session) getSensorR1(mac string, r1 [16]byte) error {
	payload := make([]byte, 0, 24)
	payload = append(payload, []byte(mac)...)
	payload = append(payload, r1[:]...)
	_, err := s.doCommand(protocol.Packet{Command: protocol.CmdGetSensorR1, Payload: payload}, protocol.RespGetSensorR1, defaultTimeout)
	return err
}

// verifySensorCode is the fixed trailer appended to every verify_sensor
// request, following the mac; it never varies.
var verifySensorCode = [2]byte{0xFF, 0x04}

func (s *Session) verifySensor(mac string) error {
	payload := make([]byte, 0, 10)
	payload = append(payload, []byte(mac)...)
	payload = append(payload, verifySensorCode[:]...)
	_, err := s.doCommand(protocol.Packet{Command: protocol.CmdVerifySensor, Payload: payload}, protocol.RespVerifySensor, defaultTimeout)
	return err
}

// deleteSensor unpairs mac. The acknowledgement carries the echoed MAC
// followed by a one-byte code; deletion is confirmed only when the MAC
// matches and the code is 0xFF. Any other echo is logged and reported as
// false with a nil error. A payload too short to hold both fields is a
// protocol violation.
func (s *Session) deleteSensor(mac string) (bool, error) {
	resp, err := s.doCommand(protocol.Packet{Command: protocol.CmdDelSensor, Payload: []byte(mac)}, protocol.RespDelSensor, defaultTimeout)
	if err != nil {
		return false, err
	}
	if len(resp.Payload) < 9 {
		return false, &ErrProtocolViolation{Op: "del_sensor", Msg: "short response payload"}
	}
	echoed, code := string(resp.Payload[:8]), resp.Payload[8]
	if echoed != mac || code != 0xFF {
		log.Printf("bridge: del_sensor %s: dongle echoed mac=%q code=%#02x", mac, echoed, code)
		return false, nil
	}
	return true, nil
}
