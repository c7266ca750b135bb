package evdev

import (
	"encoding/binary"
	"time"

	"ringobridge/internal/activity"
)

// Event types and key codes from linux/input-event-codes.h.
const (
	evSyn = 0x00
	evKey = 0x01

	btnLeft   = 0x110
	btnRight  = 0x111
	btnMiddle = 0x112
	btnTouch  = 0x14a
	btnStylus = 0x14b
)

// inputEvent is a decoded struct input_event.
type inputEvent struct {
	Time  time.Time
	Type  uint16
	Code  uint16
	Value int32
}

// decodeEvent parses one input_event. size is 24 on 64-bit kernels and 16
// where timeval holds 32-bit fields.
func decodeEvent(b []byte, size int) inputEvent {
	var sec, usec int64
	off := 16
	if size == 24 {
		sec = int64(binary.LittleEndian.Uint64(b[0:8]))
		usec = int64(binary.LittleEndian.Uint64(b[8:16]))
	} else {
		sec = int64(int32(binary.LittleEndian.Uint32(b[0:4])))
		usec = int64(int32(binary.LittleEndian.Uint32(b[4:8])))
		off = 8
	}
	return inputEvent{
		Time:  time.Unix(sec, usec*int64(time.Microsecond)),
		Type:  binary.LittleEndian.Uint16(b[off : off+2]),
		Code:  binary.LittleEndian.Uint16(b[off+2 : off+4]),
		Value: int32(binary.LittleEndian.Uint32(b[off+4 : off+8])),
	}
}

// transition maps a key event to a button transition. Autorepeat and
// non-button keys are ignored.
func (e inputEvent) transition() (activity.Transition, bool) {
	if e.Type != evKey || e.Value > 1 {
		return activity.Transition{}, false
	}
	var b activity.Button
	switch e.Code {
	case btnLeft:
		b = activity.ButtonPrimary
	case btnRight:
		b = activity.ButtonSecondary
	case btnMiddle:
		b = activity.ButtonAuxiliary
	case btnTouch, btnStylus:
		b = activity.ButtonStylus
	default:
		return activity.Transition{}, false
	}
	return activity.Transition{Timestamp: e.Time, Button: b, Down: e.Value == 1}, true
}
