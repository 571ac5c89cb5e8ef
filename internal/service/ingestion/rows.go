package ingestion

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"lakegov/internal/domain"
)

// decodeRecord turns a raw record into an IngestRow. The key hash is the
// SHA-256 of the compact JSON array of the idempotency-key values, in
// contract order. The payload is the record's canonical JSON without the
// processing-time column, so redeliveries of one event compare equal.
func decodeRecord(rec domain.Record, sem domain.IngestionSemantics, now func() time.Time) (domain.IngestRow, error) {
	keys := make([]json.RawMessage, 0, len(sem.IdempotencyKey))
	for _, k := range sem.IdempotencyKey {
		v, ok := rec[k]
		if !ok || isNull(v) {
			return domain.IngestRow{}, fmt.Errorf("idempotency key column %q is missing", k)
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, v); err != nil {
			return domain.IngestRow{}, fmt.Errorf("idempotency key column %q: %w", k, err)
		}
		keys = append(keys, buf.Bytes())
	}
	keyJSON, err := json.Marshal(keys)
	if err != nil {
		return domain.IngestRow{}, err
	}
	sum := sha256.Sum256(keyJSON)

	eventTime, err := eventTimeOf(rec, sem.EventTimeColumn, now)
	if err != nil {
		return domain.IngestRow{}, err
	}

	payload := make(map[string]json.RawMessage, len(rec))
	for k, v := range rec {
		if k == sem.ProcessingTimeColumn.Name && k != sem.EventTimeColumn.Name {
			continue
		}
		payload[k] = v
	}
	// Map keys are marshalled in sorted order and raw values are compacted.
	data, err := json.Marshal(payload)
	if err != nil {
		return domain.IngestRow{}, err
	}

	return domain.IngestRow{
		KeyHash:   hex.EncodeToString(sum[:]),
		KeyJSON:   string(keyJSON),
		EventTime: eventTime,
		Payload:   string(data),
	}, nil
}

// eventTimeOf reads the event time from an RFC 3339 string or a number of
// Unix seconds. A wall_clock column is stamped with the current time.
func eventTimeOf(rec domain.Record, col domain.TemporalColumn, now func() time.Time) (time.Time, error) {
	if col.Source == domain.TimeSourceWallClock {
		return now(), nil
	}
	v, ok := rec[col.Name]
	if !ok || isNull(v) {
		return time.Time{}, fmt.Errorf("event time column %q is missing", col.Name)
	}

	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("event time column %q: %w", col.Name, err)
		}
		return t.UTC(), nil
	}
	var secs float64
	if err := json.Unmarshal(v, &secs); err != nil {
		return time.Time{}, fmt.Errorf("event time column %q: want RFC 3339 string or unix seconds, got %s", col.Name, v)
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC(), nil
}

func isNull(v json.RawMessage) bool {
	return len(bytes.TrimSpace(v)) == 0 || string(bytes.TrimSpace(v)) == "null"
}
