package macroengine

import "golang.org/x/sys/unix"

// SystemMapping resolves the symbolic key/event names used in macro source
// text (k("KEY_A"), e("EV_KEY", "KEY_A", 1)) to kernel input event codes,
// mirroring python-evdev's ecodes module.
type SystemMapping interface {
	// Lookup resolves a key symbol (e.g. "KEY_A") to its EV_KEY code.
	Lookup(symbol string) (code int, ok bool)

	// EventType resolves a symbolic event type (e.g. "EV_KEY", "EV_REL") to
	// its kernel event type constant.
	EventType(name string) (typ EventType, ok bool)

	// EventCode resolves a symbolic event code within typ (e.g. "REL_X"
	// under EV_REL) to its kernel code.
	EventCode(typ EventType, name string) (code int, ok bool)
}

const (
	EventTypeKey EventType = EventType(unix.EV_KEY)
	EventTypeRel EventType = EventType(unix.EV_REL)
	EventTypeSyn EventType = EventType(unix.EV_SYN)
)

// relCodes and keyCodes mirror the subset of linux/input-event-codes.h that
// python-evdev's ecodes module exposes; x/sys/unix only carries the EV_*
// event-type constants, not the per-type code tables, so this engine
// maintains its own, the way python-evdev maintains its own ecodes module.
var relCodes = map[string]int{
	"REL_X":      0x00,
	"REL_Y":      0x01,
	"REL_Z":      0x02,
	"REL_WHEEL":  0x08,
	"REL_HWHEEL": 0x06,
}

var keyCodes = map[string]int{
	"KEY_ESC":        1,
	"KEY_1":          2,
	"KEY_2":          3,
	"KEY_3":          4,
	"KEY_4":          5,
	"KEY_5":          6,
	"KEY_6":          7,
	"KEY_7":          8,
	"KEY_8":          9,
	"KEY_9":          10,
	"KEY_0":          11,
	"KEY_MINUS":      12,
	"KEY_EQUAL":      13,
	"KEY_BACKSPACE":  14,
	"KEY_TAB":        15,
	"KEY_Q":          16,
	"KEY_W":          17,
	"KEY_E":          18,
	"KEY_R":          19,
	"KEY_T":          20,
	"KEY_Y":          21,
	"KEY_U":          22,
	"KEY_I":          23,
	"KEY_O":          24,
	"KEY_P":          25,
	"KEY_ENTER":      28,
	"KEY_LEFTCTRL":   29,
	"KEY_A":          30,
	"KEY_S":          31,
	"KEY_D":          32,
	"KEY_F":          33,
	"KEY_G":          34,
	"KEY_H":          35,
	"KEY_J":          36,
	"KEY_K":          37,
	"KEY_L":          38,
	"KEY_LEFTSHIFT":  42,
	"KEY_Z":          44,
	"KEY_X":          45,
	"KEY_C":          46,
	"KEY_V":          47,
	"KEY_B":          48,
	"KEY_N":          49,
	"KEY_M":          50,
	"KEY_RIGHTSHIFT":  54,
	"KEY_LEFTALT":    56,
	"KEY_SPACE":      57,
	"KEY_CAPSLOCK":   58,
	"KEY_F1":         59,
	"KEY_F2":         60,
	"KEY_F3":         61,
	"KEY_F4":         62,
	"KEY_F5":         63,
	"KEY_F6":         64,
	"KEY_F7":         65,
	"KEY_F8":         66,
	"KEY_F9":         67,
	"KEY_F10":        68,
	"KEY_F11":        87,
	"KEY_F12":        88,
	"KEY_RIGHTCTRL":  97,
	"KEY_RIGHTALT":   100,
	"KEY_HOME":       102,
	"KEY_UP":         103,
	"KEY_PAGEUP":     104,
	"KEY_LEFT":       105,
	"KEY_RIGHT":      106,
	"KEY_END":        107,
	"KEY_DOWN":       108,
	"KEY_PAGEDOWN":   109,
	"KEY_INSERT":     110,
	"KEY_DELETE":     111,
	"KEY_LEFTMETA":   125,
	"KEY_RIGHTMETA":  126,
	"BTN_LEFT":       0x110,
	"BTN_RIGHT":      0x111,
	"BTN_MIDDLE":     0x112,
}

var eventTypeNames = map[string]EventType{
	"EV_KEY": EventTypeKey,
	"EV_REL": EventTypeRel,
	"EV_SYN": EventTypeSyn,
}

// DefaultSystemMapping returns the built-in Linux input-event-codes mapping.
func DefaultSystemMapping() SystemMapping { return defaultMapping{} }

type defaultMapping struct{}

func (defaultMapping) Lookup(symbol string) (int, bool) {
	code, ok := keyCodes[symbol]
	return code, ok
}

func (defaultMapping) EventType(name string) (EventType, bool) {
	t, ok := eventTypeNames[name]
	return t, ok
}

func (defaultMapping) EventCode(typ EventType, name string) (int, bool) {
	switch typ {
	case EventTypeKey:
		code, ok := keyCodes[name]
		return code, ok
	case EventTypeRel:
		code, ok := relCodes[name]
		return code, ok
	default:
		return 0, false
	}
}
