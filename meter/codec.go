package meter

import (
	"encoding/json"
	"time"
)

// CodecVersion tags the persisted ledger layout.
const CodecVersion = 1

type ledgerRecord struct {
	Version  int              `json:"v"`
	Date     string           `json:"date"`
	Messages *json.RawMessage `json:"messages"`
	Actions  *json.RawMessage `json:"actions"`
}

// Encode serializes l for a key-value store.
func Encode(l Ledger) (string, error) {
	data, err := json.Marshal(struct {
		Version int `json:"v"`
		Ledger
	}{CodecVersion, l})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Decode parses a persisted ledger. Anything it cannot trust (empty input,
// invalid JSON, unknown version, a missing or unparsable date, non-numeric or
// negative counters) yields a fresh ledger for today and ok=false. Corrupted
// local state never propagates as an error.
func Decode(raw string, c Clock) (l Ledger, ok bool) {
	if raw == "" {
		return Fresh(c), false
	}

	var rec ledgerRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return Fresh(c), false
	}
	// Records written before versioning carry no "v" field.
	if rec.Version != 0 && rec.Version != CodecVersion {
		return Fresh(c), false
	}
	if _, err := time.Parse(DateLayout, rec.Date); err != nil {
		return Fresh(c), false
	}

	messages, ok := decodeCounter(rec.Messages)
	if !ok {
		return Fresh(c), false
	}
	actions, ok := decodeCounter(rec.Actions)
	if !ok {
		return Fresh(c), false
	}

	return Ledger{Date: rec.Date, MessageCount: messages, ActionCount: actions}, true
}

func decodeCounter(raw *json.RawMessage) (int64, bool) {
	if raw == nil {
		return 0, false
	}
	var n int64
	if err := json.Unmarshal(*raw, &n); err != nil {
		return 0, false
	}
	if n < 0 {
		return 0, false
	}
	return n, true
}
