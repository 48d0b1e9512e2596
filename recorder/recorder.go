// Package recorder persists sensor events to durable storage, separate
// from the live session's in-memory event callback. It exists so an
// embedding application can replay history without re-pairing sensors
// or reasoning about the dongle's own (non-persistent) state.
package recorder

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"sensebridge/bridge"
)

// record is the on-disk shape of one SensorEvent. Field tags follow the
// integer-keyed CBOR map convention so the format stays compact and
// stable even as fields are appended.
type record struct {
	MAC            string `cbor:"1,keyasint"`
	TimestampUnix  int64  `cbor:"2,keyasint"`
	Kind           string `cbor:"3,keyasint"`
	State          string `cbor:"4,keyasint"`
	BatteryPercent int    `cbor:"5,keyasint"`
	SignalStrength int    `cbor:"6,keyasint"`
}

// Recorder appends CBOR-encoded sensor events to an underlying writer,
// each prefixed with a 4-byte big-endian length so a reader can frame
// the stream without needing position seeking.
type Recorder struct {
	mu sync.Mutex
	w  io.Writer
}

// New wraps w (typically an append-mode file) as a Recorder.
func New(w io.Writer) *Recorder {
	return &Recorder{w: w}
}

// Record encodes ev and appends it to the stream. Safe for concurrent
// use; the session's event callback and any other writer may share one
// Recorder.
func (r *Recorder) Record(ev bridge.SensorEvent) error {
	enc, err := cbor.Marshal(record{
		MAC:            ev.MAC,
		TimestampUnix:  ev.Timestamp.UnixMilli(),
		Kind:           ev.Kind.String(),
		State:          ev.State,
		BatteryPercent: ev.BatteryPercent,
		SignalStrength: int(ev.SignalStrength),
	})
	if err != nil {
		return fmt.Errorf("recorder: encode: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(enc)))
	if _, err := r.w.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("recorder: write length: %w", err)
	}
	if _, err := r.w.Write(enc); err != nil {
		return fmt.Errorf("recorder: write record: %w", err)
	}
	return nil
}

// Read decodes the next event from r, or io.EOF once the stream is
// exhausted.
func Read(r io.Reader) (bridge.SensorEvent, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return bridge.SensorEvent{}, err
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return bridge.SensorEvent{}, fmt.Errorf("recorder: short record: %w", err)
	}

	var rec record
	if err := cbor.Unmarshal(buf, &rec); err != nil {
		return bridge.SensorEvent{}, fmt.Errorf("recorder: decode: %w", err)
	}

	kind := bridge.KindUnknown
	switch rec.Kind {
	case "switch":
		kind = bridge.KindSwitch
	case "motion":
		kind = bridge.KindMotion
	}

	return bridge.SensorEvent{
		MAC:            rec.MAC,
		Timestamp:      time.UnixMilli(rec.TimestampUnix),
		Kind:           kind,
		State:          rec.State,
		BatteryPercent: rec.BatteryPercent,
		SignalStrength: int8(rec.SignalStrength),
	}, nil
}
