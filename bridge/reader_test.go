package bridge

import (
	"testing"
	"time"

	"sensebridge/protocol"
)

// TestResyncAcrossGarbagePrefix checks that a garbage prefix containing
// no 55 AA sequence, followed by two valid frames, still yields both
// frames in order.
func TestResyncAcrossGarbagePrefix(t *testing.T) {
	events := make(chan SensorEvent, 2)
	sess, ft := openTestSession(t, func(_ *Session, ev SensorEvent) {
		events <- ev
	})
	defer sess.Stop()

	garbage := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x99, 0x11, 0x22}

	p1 := alarmPayload("11111111", 0x01, 50, 1, 10)
	p2 := alarmPayload("22222222", 0x02, 75, 0, -20)

	stream := append([]byte{}, garbage...)
	stream = append(stream, protocol.Serialize(protocol.Packet{Command: protocol.NotifySensorAlarm, Payload: p1})...)
	stream = append(stream, protocol.Serialize(protocol.Packet{Command: protocol.NotifySensorAlarm, Payload: p2})...)

	ft.push(stream)

	var got []SensorEvent
	for i := 0; i < 2; i++ {
		select {
		case ev := <-events:
			got = append(got, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of 2 events", i)
		}
	}

	if got[0].MAC != "11111111" || got[1].MAC != "22222222" {
		t.Errorf("events arrived out of order or wrong: %+v", got)
	}
}

func alarmPayload(mac string, class byte, battery int, stateRaw byte, signal int8) []byte {
	payload := make([]byte, 0, 26)
	payload = append(payload, 0x00, 0x00, 0x01, 0x8b, 0xcf, 0xe5, 0x68, 0x00)
	payload = append(payload, 0x00)
	payload = append(payload, []byte(mac)...)
	record := make([]byte, 9)
	record[0] = class
	record[2] = byte(battery)
	record[5] = stateRaw
	record[8] = byte(signal)
	payload = append(payload, record...)
	return payload
}
