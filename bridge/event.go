package bridge

import (
	"encoding/binary"
	"time"
)

// SensorKind classifies the sensor that raised an alarm.
type SensorKind int

const (
	KindUnknown SensorKind = iota
	KindSwitch
	KindMotion
)

func (k SensorKind) String() string {
	switch k {
	case KindSwitch:
		return "switch"
	case KindMotion:
		return "motion"
	default:
		return "unknown"
	}
}

// SensorEvent is the structured form of a NOTIFY_SENSOR_ALARM payload,
// delivered to the embedding application's event callback.
type SensorEvent struct {
	MAC             string
	Timestamp       time.Time
	Kind            SensorKind
	State           string
	BatteryPercent  int
	SignalStrength  int8
}

// minAlarmPayload is the floor below which a NOTIFY_SENSOR_ALARM payload
// cannot be decoded at all; shorter payloads are logged and dropped.
const minAlarmPayload = 18

// decodeSensorEvent decodes a NOTIFY_SENSOR_ALARM payload. Fields
// inside the alarm record beyond what the payload actually carries
// default to their zero value rather than panicking, since the record's
// trailing fields (battery, state, signal) are not always present.
func decodeSensorEvent(payload []byte) (SensorEvent, bool) {
	if len(payload) < minAlarmPayload {
		return SensorEvent{}, false
	}

	tsMillis := binary.BigEndian.Uint64(payload[0:8])
	mac := string(payload[9:17])
	record := payload[17:]

	var class byte
	if len(record) > 0 {
		class = record[0]
	}
	battery := 0
	if len(record) > 2 {
		battery = int(record[2])
	}
	var stateRaw byte
	if len(record) > 5 {
		stateRaw = record[5]
	}
	var signal int8
	if len(record) > 8 {
		signal = int8(record[8])
	}

	kind := KindUnknown
	state := "unknown"
	switch class {
	case 0x01:
		kind = KindSwitch
		if stateRaw == 1 {
			state = "open"
		} else {
			state = "close"
		}
	case 0x02:
		kind = KindMotion
		if stateRaw == 1 {
			state = "active"
		} else {
			state = "inactive"
		}
	}

	return SensorEvent{
		MAC:            mac,
		Timestamp:      time.UnixMilli(int64(tsMillis)),
		Kind:           kind,
		State:          state,
		BatteryPercent: battery,
		SignalStrength: signal,
	}, true
}
