package x11

import (
	"encoding/binary"
	"strings"
)

// _MOTIF_WM_HINTS fields.
const (
	mwmHintsDecorations = 1 << 1
	mwmDecorAll         = 1
	motifHintsLen       = 5
)

// motifHints is the five-CARD32 _MOTIF_WM_HINTS property.
type motifHints struct {
	Flags       uint32
	Functions   uint32
	Decorations uint32
	InputMode   uint32
	Status      uint32
}

func parseMotifHints(b []byte) (motifHints, bool) {
	v := uint32s(b)
	if len(v) < motifHintsLen {
		return motifHints{}, false
	}
	return motifHints{v[0], v[1], v[2], v[3], v[4]}, true
}

func (h motifHints) bytes() []byte {
	return putUint32s([]uint32{h.Flags, h.Functions, h.Decorations, h.InputMode, h.Status})
}

// decorated reports whether the window manager should draw a frame.
func (h motifHints) decorated() bool {
	return h.Flags&mwmHintsDecorations == 0 || h.Decorations != 0
}

func withDecorations(h motifHints, on bool) motifHints {
	h.Flags |= mwmHintsDecorations
	if on {
		h.Decorations = mwmDecorAll
	} else {
		h.Decorations = 0
	}
	return h
}

// parseWMClass splits WM_CLASS into instance and class.
func parseWMClass(b []byte) (instance, class string) {
	parts := strings.Split(strings.TrimRight(string(b), "\x00"), "\x00")
	if len(parts) >= 1 {
		instance = parts[0]
	}
	if len(parts) >= 2 {
		class = parts[1]
	}
	return instance, class
}

// uint32s decodes a format-32 property. X servers send properties in the
// client's byte order, which xgb negotiates as little endian.
func uint32s(b []byte) []uint32 {
	out := make([]uint32, len(b)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return out
}

func putUint32s(v []uint32) []byte {
	b := make([]byte, len(v)*4)
	for i, x := range v {
		binary.LittleEndian.PutUint32(b[i*4:], x)
	}
	return b
}

func containsAtom(list []uint32, atom uint32) bool {
	for _, a := range list {
		if a == atom {
			return true
		}
	}
	return false
}

// workArea returns desktop's entry of _NET_WORKAREA as x, y, w, h.
func workArea(b []byte, desktop int) ([4]uint32, bool) {
	v := uint32s(b)
	if desktop < 0 || len(v) < (desktop+1)*4 {
		if len(v) < 4 {
			return [4]uint32{}, false
		}
		desktop = 0
	}
	off := desktop * 4
	return [4]uint32{v[off], v[off+1], v[off+2], v[off+3]}, true
}

// matchesHost reports whether a window's WM_CLASS or pid identifies the
// host application.
func matchesHost(instance, class string, pid uint32, wantClass string, wantPID int) bool {
	if wantPID > 0 && pid == uint32(wantPID) {
		return true
	}
	if wantClass == "" {
		return false
	}
	return strings.EqualFold(class, wantClass) || strings.EqualFold(instance, wantClass)
}
