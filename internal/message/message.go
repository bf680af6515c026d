// Package message decodes key-tap messages posted by the keyboard page.
//
// The page posts either a bare string, whose first character is the key
// symbol to type, or an object carrying a "text" field to be inserted through
// the input method. Both arrive JSON-encoded.
package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// Channel is the name the page posts key taps on
const Channel = "button"

// Source identifies which transport delivered a message
type Source string

const (
	SourceSurface   Source = "surface"
	SourceWebsocket Source = "websocket"
)

// ErrMalformed is returned for payloads that are neither a non-empty string
// nor an object with a string "text" field
var ErrMalformed = errors.New("malformed tap payload")

// Message is one raw tap as received from the page
type Message struct {
	Channel string
	Payload string
	Source  Source
}

// Kind discriminates the two tap payload shapes
type Kind int

const (
	KindKey Kind = iota
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindKey:
		return "key"
	case KindText:
		return "text"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Tap is a decoded message
type Tap struct {
	Kind Kind
	// Key is the symbol to synthesize, set for KindKey
	Key rune
	// Text is the string to forward, set for KindText
	Text string
}

type textPayload struct {
	Text *string `json:"text"`
}

// Decode parses a JSON-encoded payload into a Tap
func Decode(payload []byte) (Tap, error) {
	var raw json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Tap{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch firstNonSpace(raw) {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Tap{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		r, size := utf8.DecodeRuneInString(s)
		if size == 0 || r == utf8.RuneError {
			return Tap{}, fmt.Errorf("%w: empty key", ErrMalformed)
		}
		return Tap{Kind: KindKey, Key: r}, nil

	case '{':
		var obj textPayload
		if err := json.Unmarshal(raw, &obj); err != nil {
			return Tap{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if obj.Text == nil {
			return Tap{}, fmt.Errorf("%w: missing text field", ErrMalformed)
		}
		return Tap{Kind: KindText, Text: *obj.Text}, nil
	}

	return Tap{}, fmt.Errorf("%w: unsupported payload %s", ErrMalformed, truncate(raw, 32))
}

// DecodeMessage decodes m.Payload
func DecodeMessage(m Message) (Tap, error) {
	return Decode([]byte(m.Payload))
}

func firstNonSpace(b []byte) byte {
	for _, c := range b {
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return c
	}
	return 0
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
