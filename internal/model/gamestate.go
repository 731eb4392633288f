package model

import (
	"bytes"
	"encoding/json"
	"time"
)

// GameState is the single persisted game document of a user.
//
// The State field is kept as raw JSON because the game client owns its schema.
// The server only guarantees the shape repairs performed by NormalizeState.
type GameState struct {
	ID          string          `json:"-"`
	UserID      string          `json:"-"`
	State       json.RawMessage `json:"state"`
	LastUpdated time.Time       `json:"last_updated"`
}

var (
	// EmptyState is what a cleared document holds.
	EmptyState = json.RawMessage(`{}`)

	// InitialState seeds documents created on registration and login.
	InitialState = json.RawMessage(`{"locations":[]}`)
)

// IsNullState reports whether raw is absent or the JSON literal null.
func IsNullState(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// UnwrapState repairs the historical `{"state": {...}}` envelope.
//
// If raw is a JSON object holding a top-level "state" key, the nested value is
// returned instead of the wrapper. Anything else (arrays, scalars, objects
// without the key) comes back unchanged. Only one level is unwrapped; use
// NormalizeState for the stored and served form.
//
// The result is always compacted so equal documents compare byte-for-byte.
// Input that is not valid JSON is returned as-is; callers validate JSON at
// decode time.
func UnwrapState(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &envelope); err == nil {
			if inner, ok := envelope["state"]; ok {
				trimmed = bytes.TrimSpace(inner)
			}
		}
	}
	return compact(trimmed)
}

// NormalizeState unwraps envelopes until none is left at the top level.
//
// Its output is a fixpoint: NormalizeState(NormalizeState(v)) equals
// NormalizeState(v), so a value that was written and then read back is
// unwrapped once in effect no matter how many layers the client sent.
func NormalizeState(raw json.RawMessage) json.RawMessage {
	out := UnwrapState(raw)
	for {
		next := UnwrapState(out)
		// Each unwrap either removes an envelope (strictly shorter) or is a
		// no-op, so the loop ends.
		if bytes.Equal(next, out) {
			return out
		}
		out = next
	}
}

func compact(raw []byte) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		out := make(json.RawMessage, len(raw))
		copy(out, raw)
		return out
	}
	return json.RawMessage(buf.Bytes())
}
