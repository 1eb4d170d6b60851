package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// PayloadVersion is the envelope version written by Save. Payloads carrying
// any other version are treated as absent on load.
const PayloadVersion = 1

// RecordInfo describes one persisted collection without decoding its items.
type RecordInfo struct {
	Key       string
	Size      int
	UpdatedAt time.Time
}

type envelope struct {
	Version int             `json:"version"`
	Items   json.RawMessage `json:"items"`
}

func encodePayload(items any) ([]byte, error) {
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshaling items: %w", err)
	}
	if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")) {
		return nil, fmt.Errorf("items must encode as a JSON array, got %.20s", raw)
	}
	return json.Marshal(envelope{Version: PayloadVersion, Items: raw})
}

// decodePayload returns the items array held by a stored payload. A bare JSON
// array is accepted as a pre-envelope payload.
func decodePayload(data []byte) (json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty payload")
	}

	switch data[0] {
	case '[':
		if !json.Valid(data) {
			return nil, errors.New("malformed legacy array")
		}
		return json.RawMessage(data), nil
	case '{':
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("decoding envelope: %w", err)
		}
		if env.Version != PayloadVersion {
			return nil, fmt.Errorf("unsupported payload version %d", env.Version)
		}
		items := bytes.TrimSpace(env.Items)
		if len(items) == 0 || items[0] != '[' {
			return nil, errors.New("envelope items is not an array")
		}
		return json.RawMessage(items), nil
	default:
		return nil, fmt.Errorf("unexpected payload prefix %q", data[0])
	}
}
