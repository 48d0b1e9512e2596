package bridge

import (
	"testing"
	"time"

	"sensebridge/protocol"
)

// TestAsyncAutoAck checks that every inbound async packet
// other than ASYNC_ACK itself must be acked, with the echoed command id,
// before the handler sees it.
func TestAsyncAutoAck(t *testing.T) {
	sess, ft := openTestSession(t, nil)
	defer sess.Stop()

	baseWrites := len(ft.writes())

	ft.pushFrame(protocol.Packet{Command: protocol.NotifySyncTime})

	deadline := time.Now().Add(time.Second)
	for {
		writes := ft.writes()
		if len(writes) > baseWrites+1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for ack + reply, writes=%d", len(writes))
		}
		time.Sleep(5 * time.Millisecond)
	}

	writes := ft.writes()
	ackFrame := writes[baseWrites]
	p, n, err := protocol.Parse(ackFrame)
	if err != nil || n != len(ackFrame) {
		t.Fatalf("ack frame did not parse cleanly: %v", err)
	}
	if !p.IsAsyncAck() {
		t.Fatalf("first write after notification = %+v, want an ASYNC_ACK", p)
	}
	if p.AckOf != protocol.NotifySyncTime {
		t.Errorf("AckOf = %#04x, want %#04x", p.AckOf, protocol.NotifySyncTime)
	}
}

// TestSyncTimeAnswered checks the permanent NOTIFY_SYNC_TIME handler
// replies with an 8-byte millisecond timestamp after the auto-ack.
func TestSyncTimeAnswered(t *testing.T) {
	sess, ft := openTestSession(t, nil)
	defer sess.Stop()

	baseWrites := len(ft.writes())
	ft.pushFrame(protocol.Packet{Command: protocol.NotifySyncTime})

	deadline := time.Now().Add(time.Second)
	for {
		writes := ft.writes()
		if len(writes) >= baseWrites+2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for sync_time reply")
		}
		time.Sleep(5 * time.Millisecond)
	}

	writes := ft.writes()
	reply, n, err := protocol.Parse(writes[baseWrites+1])
	if err != nil || n != len(writes[baseWrites+1]) {
		t.Fatalf("reply frame did not parse cleanly: %v", err)
	}
	if reply.Command != protocol.ReplySyncTime {
		t.Errorf("reply command = %#04x, want %#04x", reply.Command, protocol.ReplySyncTime)
	}
	if len(reply.Payload) != 8 {
		t.Errorf("reply payload length = %d, want 8", len(reply.Payload))
	}
}

// TestDuplicateNotificationsAreIdempotent confirms a retransmitted
// notification is acked and handled again without upsetting the session
// (duplicates must be tolerated).
func TestDuplicateNotificationsAreIdempotent(t *testing.T) {
	events := make(chan SensorEvent, 4)
	sess, ft := openTestSession(t, func(_ *Session, ev SensorEvent) {
		events <- ev
	})
	defer sess.Stop()

	payload := make([]byte, 0, 26)
	payload = append(payload, 0x00, 0x00, 0x01, 0x8b, 0xcf, 0xe5, 0x68, 0x00)
	payload = append(payload, 0x00)
	payload = append(payload, []byte("DEADBEEF")...)
	payload = append(payload, 0x02, 0x00, 0x32, 0x00, 0x00, 0x01, 0x00, 0x00, 0x05)

	notification := protocol.Packet{Command: protocol.NotifySensorAlarm, Payload: payload}
	ft.pushFrame(notification)
	ft.pushFrame(notification)

	for i := 0; i < 2; i++ {
		select {
		case ev := <-events:
			if ev.MAC != "DEADBEEF" || ev.Kind != KindMotion {
				t.Errorf("event %d = %+v, want mac=DEADBEEF kind=motion", i, ev)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for duplicate event %d", i)
		}
	}
}
