package mutter

import (
	"errors"
	"math"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ringobridge/internal/activity"
)

type fakeObject struct {
	method string
	reply  uint64
	err    error
}

func (f *fakeObject) Call(method string, _ dbus.Flags, _ ...interface{}) *dbus.Call {
	f.method = method
	if f.err != nil {
		return &dbus.Call{Err: f.err}
	}
	return &dbus.Call{Body: []interface{}{f.reply}}
}

func TestSample(t *testing.T) {
	obj := &fakeObject{reply: 2500}
	s := newWithCaller(obj)

	sample, err := s.Sample()
	require.NoError(t, err)
	assert.Equal(t, "org.gnome.Mutter.IdleMonitor.GetIdletime", obj.method)
	assert.InDelta(t, 2.5, sample.SinceButtonDown, 1e-9)
	assert.Equal(t, sample.SinceButtonDown, sample.SinceButtonDrag)
	assert.False(t, sample.ButtonKnown)
	assert.True(t, sample.Valid())
}

func TestSampleErrors(t *testing.T) {
	s := newWithCaller(&fakeObject{err: errors.New("no reply")})
	_, err := s.Sample()
	assert.ErrorContains(t, err, "GetIdletime")

	require.NoError(t, s.Close())
	_, err = s.Sample()
	assert.ErrorIs(t, err, activity.ErrNotAvailable)
}

func TestFromMillisSaturates(t *testing.T) {
	sample := fromMillis(math.MaxUint64)
	assert.True(t, math.IsInf(sample.SinceButtonDown, 1))
	assert.False(t, sample.Valid())
}
