package evdev

import (
	"encoding/binary"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ringobridge/internal/activity"
)

const procDevices = `I: Bus=0011 Vendor=0001 Product=0001 Version=ab41
N: Name="AT Translated Set 2 keyboard"
P: Phys=isa0060/serio0/input0
H: Handlers=sysrq kbd event3 leds
B: KEY=402000000 3803078f800d001 feffffdfffefffff fffffffffffffffe

I: Bus=0003 Vendor=046d Product=c52b Version=0111
N: Name="Logitech USB Receiver Mouse"
H: Handlers=mouse0 event5
B: KEY=1f0000 0 0 0 0

I: Bus=0018 Vendor=056a Product=5193 Version=0100
N: Name="Wacom Pen and multitouch sensor Pen"
H: Handlers=event7
B: KEY=1c03 0 0 0 0 0

I: Bus=0019 Vendor=0000 Product=0001 Version=0000
N: Name="Power Button"
H: Handlers=kbd event0
`

func TestParseDevices(t *testing.T) {
	devices, err := ParseDevices(strings.NewReader(procDevices))
	require.NoError(t, err)
	require.Len(t, devices, 4)
	assert.Equal(t, "Logitech USB Receiver Mouse", devices[1].Name)
	assert.Equal(t, "event5", devices[1].Event)
	assert.Equal(t, "/dev/input/event5", devices[1].Path())

	pointers := Pointers(devices)
	require.Len(t, pointers, 2)
	assert.Equal(t, "event5", pointers[0].Event)
	assert.Equal(t, "event7", pointers[1].Event)
}

func encode64(sec, usec int64, typ, code uint16, value int32) []byte {
	b := make([]byte, 24)
	binary.LittleEndian.PutUint64(b[0:], uint64(sec))
	binary.LittleEndian.PutUint64(b[8:], uint64(usec))
	binary.LittleEndian.PutUint16(b[16:], typ)
	binary.LittleEndian.PutUint16(b[18:], code)
	binary.LittleEndian.PutUint32(b[20:], uint32(value))
	return b
}

func encode32(sec, usec int32, typ, code uint16, value int32) []byte {
	b := make([]byte, 16)
	binary.LittleEndian.PutUint32(b[0:], uint32(sec))
	binary.LittleEndian.PutUint32(b[4:], uint32(usec))
	binary.LittleEndian.PutUint16(b[8:], typ)
	binary.LittleEndian.PutUint16(b[10:], code)
	binary.LittleEndian.PutUint32(b[12:], uint32(value))
	return b
}

func TestDecodeEvent(t *testing.T) {
	ev := decodeEvent(encode64(1700000000, 250000, evKey, btnLeft, 1), 24)
	assert.Equal(t, time.Unix(1700000000, 250000000), ev.Time)
	tr, ok := ev.transition()
	require.True(t, ok)
	assert.Equal(t, activity.Transition{Timestamp: ev.Time, Button: activity.ButtonPrimary, Down: true}, tr)

	ev = decodeEvent(encode32(1700000000, 1000, evKey, btnRight, 0), 16)
	tr, ok = ev.transition()
	require.True(t, ok)
	assert.Equal(t, activity.ButtonSecondary, tr.Button)
	assert.False(t, tr.Down)
	assert.Equal(t, int64(1700000000001), tr.Timestamp.UnixMilli())
}

func TestTransitionFilter(t *testing.T) {
	tests := []struct {
		name  string
		typ   uint16
		code  uint16
		value int32
		want  bool
	}{
		{"sync", evSyn, 0, 0, false},
		{"key a", evKey, 30, 1, false},
		{"repeat", evKey, btnLeft, 2, false},
		{"middle", evKey, btnMiddle, 1, true},
		{"touch", evKey, btnTouch, 1, true},
		{"stylus", evKey, btnStylus, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := inputEvent{Type: tt.typ, Code: tt.code, Value: tt.value}.transition()
			assert.Equal(t, tt.want, ok)
		})
	}
}
