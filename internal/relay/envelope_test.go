package relay

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/cerebro-dash/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		kind    string
		payload string
		parsed  bool
	}{
		{"object with payload", `{"kind":"bot_spawned","payload":{"id":3}}`, "bot_spawned", `{"id":3}`, true},
		{"missing payload", `{"kind":"tick"}`, "tick", `null`, true},
		{"extra fields ignored", `{"kind":"tick","payload":1,"ts":5}`, "tick", `1`, true},
		{"plain text", `hello`, types.EventKindRaw, `"hello"`, false},
		{"empty kind", `{"kind":"","payload":1}`, types.EventKindRaw, `"{\"kind\":\"\",\"payload\":1}"`, false},
		{"non-string kind", `{"kind":7}`, types.EventKindRaw, `"{\"kind\":7}"`, false},
		{"no kind", `{"payload":1}`, types.EventKindRaw, `"{\"payload\":1}"`, false},
		{"array", `[1,2]`, types.EventKindRaw, `"[1,2]"`, false},
		{"null", `null`, types.EventKindRaw, `"null"`, false},
		{"empty", ``, types.EventKindRaw, `""`, false},
		{"invalid utf-8", "a\xff\xfeb", types.EventKindRaw, `{"base64":"Yf/+Yg=="}`, false},
		{"valid multibyte", "héllo", types.EventKindRaw, `"héllo"`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, parsed := Decode([]byte(tt.in))
			assert.Equal(t, tt.parsed, parsed)
			assert.Equal(t, tt.kind, event.Kind)
			assert.JSONEq(t, tt.payload, string(event.Payload))
		})
	}
}

func TestDecodeKeepsNonUTF8Bytes(t *testing.T) {
	data := []byte{'a', 0xff, 0xfe, 'b'}
	event, ok := Decode(data)
	require.False(t, ok)

	var payload binaryPayload
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	decoded, err := base64.StdEncoding.DecodeString(payload.Base64)
	require.NoError(t, err)
	assert.Equal(t, data, decoded)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "draining", StateDraining.String())
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "unknown", State(42).String())
}
