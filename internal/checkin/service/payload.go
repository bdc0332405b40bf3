package checkin

import (
	"encoding/json"
	"errors"
	"strings"
)

// ParticipantRef is the decoded content of a badge QR.
type ParticipantRef struct {
	ID string
}

// ParseScanPayload accepts a bare id, a JSON string or number, or a JSON
// object with a user_id (preferred) or userId field. Numeric ids are kept
// as scanned, never reformatted.
func ParseScanPayload(raw string) (ParticipantRef, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ParticipantRef{}, ErrMalformedPayload
	}

	decoded, err := decodeJSON(text)
	if err != nil {
		if strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[") {
			return ParticipantRef{}, newError(CodeMalformedPayload, "scan payload is not valid JSON", err)
		}
		return ParticipantRef{ID: text}, nil
	}

	switch v := decoded.(type) {
	case map[string]any:
		for _, field := range []string{"user_id", "userId"} {
			if id, ok := idFromValue(v[field]); ok {
				return ParticipantRef{ID: id}, nil
			}
		}
		return ParticipantRef{}, ErrMalformedPayload
	case json.Number:
		return ParticipantRef{ID: text}, nil
	default:
		if id, ok := idFromValue(v); ok {
			return ParticipantRef{ID: id}, nil
		}
		return ParticipantRef{}, ErrMalformedPayload
	}
}

// decodeJSON decodes exactly one JSON value, numbers as json.Number.
func decodeJSON(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if rest := strings.TrimSpace(text[dec.InputOffset():]); rest != "" {
		return nil, errors.New("unexpected data after JSON value")
	}
	return v, nil
}

func idFromValue(v any) (string, bool) {
	switch id := v.(type) {
	case string:
		id = strings.TrimSpace(id)
		return id, id != ""
	case json.Number:
		return id.String(), true
	default:
		return "", false
	}
}
