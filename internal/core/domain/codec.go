package domain

import (
	"encoding/json"
)

// EncodeEnvelope serializes an envelope to its JSON representation.
func EncodeEnvelope(env Envelope) ([]byte, error) {
	if env == nil {
		return nil, NewArgumentError("envelope", "must not be nil")
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, ErrMalformedEnvelope.WithDetails("encode " + env.Kind().String()).WithCause(err)
	}
	return data, nil
}

// DecodeEnvelope parses a JSON envelope. The kind is inferred from the
// properties present: state (session), method (command), event
// (notification) or content (message).
func DecodeEnvelope(data []byte) (Envelope, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, ErrMalformedEnvelope.WithCause(err)
	}

	var env Envelope
	switch {
	case has(probe, "state"):
		env = &Session{}
	case has(probe, "method"):
		env = &Command{}
	case has(probe, "event"):
		env = &Notification{}
	case has(probe, "content"):
		env = &Message{}
	default:
		return nil, ErrMalformedEnvelope.WithDetails("unknown envelope kind")
	}

	if err := json.Unmarshal(data, env); err != nil {
		if IsDomainError(err, "") {
			return nil, err
		}
		return nil, ErrMalformedEnvelope.WithDetails(env.Kind().String()).WithCause(err)
	}
	return env, nil
}

func has(m map[string]json.RawMessage, key string) bool {
	_, ok := m[key]
	return ok
}
