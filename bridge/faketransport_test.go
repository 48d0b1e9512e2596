package bridge

import (
	"io"
	"sync"
	"testing"

	"sensebridge/protocol"
)

// fakeTransport is an in-memory stand-in for transport.Transport used
// throughout this package's tests. Writes are recorded verbatim so tests
// can assert on exactly what hit the wire; reads are
// served from a buffered queue that tests (or a responder) populate.
type fakeTransport struct {
	mu      sync.Mutex
	in      chan []byte
	closeCh chan struct{}
	closed  bool
	written [][]byte

	// respond, if set, is invoked synchronously inside WritePacket for
	// every well-formed request frame and its returned packets are
	// queued as subsequent inbound reports, simulating a dongle that
	// answers every command.
	respond func(protocol.Packet) []protocol.Packet
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:      make(chan []byte, 64),
		closeCh: make(chan struct{}),
	}
}

// push injects a raw inbound report, as if read straight off the device.
func (f *fakeTransport) push(report []byte) {
	f.in <- report
}

// pushFrame serializes p and injects it as a single inbound report.
func (f *fakeTransport) pushFrame(p protocol.Packet) {
	f.push(protocol.Serialize(p))
}

func (f *fakeTransport) ReadReport() ([]byte, error) {
	select {
	case b := <-f.in:
		return b, nil
	case <-f.closeCh:
		return nil, io.EOF
	}
}

func (f *fakeTransport) WritePacket(data []byte) error {
	cp := append([]byte(nil), data...)

	f.mu.Lock()
	f.written = append(f.written, cp)
	f.mu.Unlock()

	if f.respond == nil {
		return nil
	}
	p, _, err := protocol.Parse(cp)
	if err != nil {
		return nil
	}
	for _, resp := range f.respond(p) {
		f.pushFrame(resp)
	}
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	close(f.closeCh)
	return nil
}

func (f *fakeTransport) writes() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.written))
	copy(out, f.written)
	return out
}

// handshakeResponder answers exactly the fixed startup sequence
// so Open can complete.
func handshakeResponder(p protocol.Packet) []protocol.Packet {
	switch p.Command {
	case protocol.CmdInquiry:
		return []protocol.Packet{{Command: protocol.RespInquiry, Payload: []byte{0x01}}}
	case protocol.CmdGetENR:
		return []protocol.Packet{{Command: protocol.RespGetENR, Payload: make([]byte, 16)}}
	case protocol.CmdGetMAC:
		return []protocol.Packet{{Command: protocol.RespGetMAC, Payload: []byte("ABCD1234")}}
	case protocol.CmdGetVersion:
		return []protocol.Packet{{Command: protocol.RespGetVersion, Payload: []byte("1.2.3")}}
	case protocol.CmdFinishAuth:
		return []protocol.Packet{{Command: protocol.RespFinishAuth}}
	default:
		return nil
	}
}

// openTestSession starts a Session against a fakeTransport preloaded with
// the handshake responder, failing the test immediately on any error.
func openTestSession(t *testing.T, onEvent EventCallback) (*Session, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	ft.respond = handshakeResponder
	sess, err := Open(ft, onEvent)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return sess, ft
}
