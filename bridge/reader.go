package bridge

import (
	"sync/atomic"
	"time"

	"sensebridge/protocol"
)

// resyncBufferSize comfortably holds several reports' worth of bytes
// between frame boundaries; FifoBuffer grows past this if ever needed.
const resyncBufferSize = 256

// noMagicBackoff is how long the reader sleeps when the accumulated
// buffer contains no magic prefix at all.
const noMagicBackoff = 100 * time.Millisecond

// emptyReadBackoff is how long the reader sleeps after a non-fatal empty
// read, before trying the transport again.
const emptyReadBackoff = 20 * time.Millisecond

// readerLoop is the long-running task that owns the inbound side of the
// link: it pulls bytes from the transport, locates frame boundaries in
// the resync buffer, and hands parsed packets to the dispatcher. It
// never holds the outbound lock directly, though dispatch may acquire it
// to send an auto-ack.
func (s *Session) readerLoop() {
	defer close(s.readerDone)

	buf := protocol.NewFifoBuffer(resyncBufferSize)

	for {
		if s.isShutdown() {
			return
		}

		data, err := s.transport.ReadReport()
		if err != nil {
			// Fatal transport error: stop reading, let Stop's close
			// race resolve harmlessly since it only needs to not block.
			atomic.StoreInt32(&s.shutdown, 1)
			return
		}

		if len(data) == 0 {
			time.Sleep(emptyReadBackoff)
			continue
		}

		buf.Write(data)
		s.drainFrames(buf)
	}
}

// drainFrames repeatedly searches the buffer for the magic prefix and
// parses whatever frame starts there, following the resync discipline in
// never trust a length field past a failed checksum, always
// advance by the parser's skip hint and search again.
func (s *Session) drainFrames(buf *protocol.FifoBuffer) {
	for {
		idx := buf.FindMagic()
		if idx < 0 {
			time.Sleep(noMagicBackoff)
			return
		}
		if idx > 0 {
			buf.Pop(idx)
		}

		p, n, err := protocol.Parse(buf.Data())
		switch e := err.(type) {
		case nil:
			buf.Pop(n)
			s.dispatch(p)
		case *protocol.ParseError:
			buf.Pop(e.Skip)
			continue
		default:
			if err == protocol.ErrIncomplete {
				return
			}
			// Unreachable: Parse only ever returns ErrIncomplete or
			// *ParseError.
			return
		}
	}
}
