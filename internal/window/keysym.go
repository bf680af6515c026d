package window

import (
	"github.com/BurntSushi/xgb/xproto"
)

// Keysyms for characters that do not map onto their code point
const (
	keysymBackSpace xproto.Keysym = 0xff08
	keysymTab       xproto.Keysym = 0xff09
	keysymReturn    xproto.Keysym = 0xff0d
	keysymEscape    xproto.Keysym = 0xff1b
	keysymDelete    xproto.Keysym = 0xffff

	// keysymUnicode is OR'd with a code point outside Latin-1
	keysymUnicode xproto.Keysym = 0x01000000
)

// KeysymForRune returns the X keysym that produces r.
// Latin-1 printable characters are their own keysym; everything else above
// that uses the Unicode keysym range.
func KeysymForRune(r rune) xproto.Keysym {
	switch r {
	case '\b':
		return keysymBackSpace
	case '\t':
		return keysymTab
	case '\n', '\r':
		return keysymReturn
	case 0x1b:
		return keysymEscape
	case 0x7f:
		return keysymDelete
	}

	switch {
	case r >= 0x20 && r <= 0x7e, r >= 0xa0 && r <= 0xff:
		return xproto.Keysym(r)
	case r < 0 || r > 0x10ffff:
		return 0
	case r < 0x20 || (r > 0x7e && r < 0xa0):
		return 0
	}
	return keysymUnicode | xproto.Keysym(r)
}

// findKeycode scans a GetKeyboardMapping table for the first keycode that has
// sym in any column
func findKeycode(minKeycode xproto.Keycode, perKeycode int, keysyms []xproto.Keysym, sym xproto.Keysym) (xproto.Keycode, bool) {
	if sym == 0 || perKeycode <= 0 {
		return 0, false
	}
	for i, ks := range keysyms {
		if ks == sym {
			return minKeycode + xproto.Keycode(i/perKeycode), true
		}
	}
	return 0, false
}
