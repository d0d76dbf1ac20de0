package relay

import (
	"encoding/base64"
	"encoding/json"
	"unicode/utf8"

	"github.com/cerebro-dash/apiserver/types"
)

var nullPayload = json.RawMessage("null")

// Decode turns a bus message into an event. A JSON object with a non-empty
// string "kind" keeps its kind and payload (null when absent). Anything else
// is wrapped as a raw event whose payload is the original text, or
// {"base64": "..."} holding the exact bytes when they are not valid UTF-8.
// The second result reports whether the message parsed.
func Decode(data []byte) (types.Event, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err == nil && fields != nil {
		var kind string
		if raw, ok := fields["kind"]; ok && json.Unmarshal(raw, &kind) == nil && kind != "" {
			payload := fields["payload"]
			if len(payload) == 0 {
				payload = nullPayload
			}
			return types.Event{Kind: kind, Payload: payload}, true
		}
	}

	return types.Event{Kind: types.EventKindRaw, Payload: rawPayload(data)}, false
}

type binaryPayload struct {
	Base64 string `json:"base64"`
}

func rawPayload(data []byte) json.RawMessage {
	var out []byte
	if utf8.Valid(data) {
		out, _ = json.Marshal(string(data))
	} else {
		out, _ = json.Marshal(binaryPayload{Base64: base64.StdEncoding.EncodeToString(data)})
	}
	return out
}
