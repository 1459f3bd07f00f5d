package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"fleet_tracker/internal/events"
)

// Metadata keys set by publishers.
const (
	MetaTopic       = "topic"
	MetaContentType = "contentType"
	MetaTimestamp   = "timestamp"
)

// Entry is one decoded stream entry.
type Entry struct {
	ID       string
	Stream   string
	Kind     string
	Payload  map[string]any
	Metadata map[string]any
}

// ParseEntry decodes a raw redis stream message.
func ParseEntry(stream string, msg redis.XMessage) (Entry, error) {
	fields := make(map[string]string, len(msg.Values))
	for k, v := range msg.Values {
		s, ok := v.(string)
		if !ok {
			return Entry{}, fmt.Errorf("entry %s: field %q is %T, want string", msg.ID, k, v)
		}
		fields[k] = s
	}

	e := Entry{ID: msg.ID, Stream: stream, Kind: fields[fieldType]}
	if e.Kind == "" {
		return e, fmt.Errorf("entry %s: missing %q field", msg.ID, fieldType)
	}

	payload, ok, err := Unflatten(fields, prefixPayload)
	if err != nil {
		return e, fmt.Errorf("entry %s: payload: %w", msg.ID, err)
	}
	if !ok {
		return e, fmt.Errorf("entry %s: no payload", msg.ID)
	}
	obj, isObject := payload.(map[string]any)
	if !isObject {
		return e, fmt.Errorf("entry %s: payload is %T, want object", msg.ID, payload)
	}
	e.Payload = obj

	meta, ok, err := Unflatten(fields, prefixMeta)
	if err != nil {
		return e, fmt.Errorf("entry %s: metadata: %w", msg.ID, err)
	}
	if ok {
		m, isObject := meta.(map[string]any)
		if !isObject {
			return e, fmt.Errorf("entry %s: metadata is %T, want object", msg.ID, meta)
		}
		e.Metadata = m
	}
	return e, nil
}

// Decode strictly decodes the payload into dst. The entry kind must match
// dst's kind and the payload may not carry fields dst does not declare.
func (e Entry) Decode(dst events.Message) error {
	if want := dst.Kind(); e.Kind != want {
		return fmt.Errorf("entry %s has kind %q, want %q", e.ID, e.Kind, want)
	}
	raw, err := json.Marshal(e.Payload)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("entry %s: decode %s: %w", e.ID, e.Kind, err)
	}
	return nil
}

// MetaString returns a string metadata value.
func (e Entry) MetaString(key string) string {
	s, _ := e.Metadata[key].(string)
	return s
}

// Time returns the time the entry was appended, taken from its id.
func (e Entry) Time() time.Time {
	ms, _, _ := strings.Cut(e.ID, "-")
	n, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(n)
}

// ReceivedAt returns the publisher's timestamp when present, else Time.
func (e Entry) ReceivedAt() time.Time {
	if ts := e.MetaString(MetaTimestamp); ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			return t
		}
	}
	return e.Time()
}

// idAt formats t as a stream id bound.
func idAt(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
