package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeKey(t *testing.T) {
	tests := []struct {
		payload string
		want    rune
	}{
		{`"a"`, 'a'},
		{`"A"`, 'A'},
		{`"abc"`, 'a'},
		{`" "`, ' '},
		{`"é"`, 'é'},
		{` "z" `, 'z'},
	}

	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			tap, err := Decode([]byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, KindKey, tap.Kind)
			assert.Equal(t, tt.want, tap.Key)
			assert.Empty(t, tap.Text)
		})
	}
}

func TestDecodeText(t *testing.T) {
	tap, err := Decode([]byte(`{"text":"hello"}`))
	require.NoError(t, err)
	assert.Equal(t, KindText, tap.Kind)
	assert.Equal(t, "hello", tap.Text)

	// an empty text is still a well-formed request
	tap, err = Decode([]byte(`{"text":"","extra":1}`))
	require.NoError(t, err)
	assert.Equal(t, KindText, tap.Kind)
	assert.Equal(t, "", tap.Text)
}

func TestDecodeMalformed(t *testing.T) {
	for _, payload := range []string{
		``,
		`not json`,
		`""`,
		`{}`,
		`{"text":42}`,
		`{"txt":"hello"}`,
		`42`,
		`null`,
		`["a"]`,
	} {
		t.Run(payload, func(t *testing.T) {
			_, err := Decode([]byte(payload))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestDecodeMessage(t *testing.T) {
	tap, err := DecodeMessage(Message{Channel: Channel, Payload: `"q"`, Source: SourceSurface})
	require.NoError(t, err)
	assert.Equal(t, 'q', tap.Key)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "key", KindKey.String())
	assert.Equal(t, "text", KindText.String())
	assert.Equal(t, "Kind(7)", Kind(7).String())
}
