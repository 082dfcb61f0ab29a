package events

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Observation is one normalized telemetry value extracted from a push
// envelope, before the replay guard has ruled on it.
type Observation struct {
	SerialNumber string
	Key          string
	RawValue     string
	Value        *float64
	Timestamp    time.Time
}

// KeyMatcherFunc decides whether an envelope field carries the
// monitored quantity.
type KeyMatcherFunc func(key string) bool

// PPMKeys matches gas concentration fields such as "ppm", "PPM" or
// "los_ppm".
func PPMKeys(key string) bool {
	return strings.Contains(strings.ToLower(key), "ppm")
}

type Normalizer struct {
	serialNumber     string
	matches          KeyMatcherFunc
	allowClientClock bool
	now              func() time.Time
}

type Option func(*Normalizer)

// AllowClientClock makes the normalizer fall back to the supplied
// clock when an envelope carries no server timestamp. Without it such
// envelopes are discarded, since a client clock cannot be trusted to
// preserve the temporal meaning of the history.
func AllowClientClock(clock func() time.Time) Option {
	return func(n *Normalizer) {
		n.allowClientClock = true
		n.now = clock
	}
}

func NewNormalizer(serialNumber string, matches KeyMatcherFunc, opts ...Option) *Normalizer {
	if matches == nil {
		matches = PPMKeys
	}

	n := &Normalizer{
		serialNumber: serialNumber,
		matches:      matches,
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(n)
	}

	return n
}

// Normalize parses a raw push envelope into zero or more observations.
// Malformed envelopes, envelopes scoped to another device and
// envelopes without a usable timestamp all yield zero observations,
// never an error, so that one bad message cannot stall the stream.
func (n *Normalizer) Normalize(raw []byte) []Observation {
	var envelope map[string]any

	err := json.Unmarshal(raw, &envelope)
	if err != nil {
		return nil
	}

	if serial, ok := envelopeSerial(envelope); ok && serial != n.serialNumber {
		return nil
	}

	timestamp, ok := serverTimestamp(envelope)
	if !ok {
		if !n.allowClientClock {
			return nil
		}
		timestamp = n.now()
	}

	fields := envelope
	for _, wrapper := range []string{"payload", "params"} {
		if inner, ok := envelope[wrapper].(map[string]any); ok {
			fields = inner
			break
		}
	}

	observations := []Observation{}

	for key, value := range fields {
		if !n.matches(key) {
			continue
		}

		rawValue, numeric := coerceValue(value)

		observations = append(observations, Observation{
			SerialNumber: n.serialNumber,
			Key:          key,
			RawValue:     rawValue,
			Value:        numeric,
			Timestamp:    timestamp,
		})
	}

	// map iteration order is random, keep multi-key envelopes stable
	sort.Slice(observations, func(i, j int) bool {
		return observations[i].Key < observations[j].Key
	})

	return observations
}

func envelopeSerial(envelope map[string]any) (string, bool) {
	for _, key := range []string{"serial", "serialNumber", "deviceId", "device_id", "device"} {
		if serial, ok := envelope[key].(string); ok && serial != "" {
			return serial, true
		}
	}

	return "", false
}

func serverTimestamp(envelope map[string]any) (time.Time, bool) {
	for _, key := range []string{"timestamp", "ts", "time", "receivedAt", "received_at", "serverTime"} {
		value, ok := envelope[key]
		if !ok {
			continue
		}

		switch t := value.(type) {
		case float64:
			if t <= 0 {
				continue
			}
			if t > 1e12 {
				return time.UnixMilli(int64(t)), true
			}
			return time.Unix(int64(t), 0), true
		case string:
			for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
				if ts, err := time.Parse(layout, t); err == nil {
					return ts, true
				}
			}
		}
	}

	return time.Time{}, false
}

// coerceValue renders the original value for display and attempts
// numeric conversion. A value that fails conversion is kept for
// display but is never compared against a threshold.
func coerceValue(value any) (string, *float64) {
	switch v := value.(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), &v
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return v, &f
		}
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case nil:
		return "", nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", nil
		}
		return string(b), nil
	}
}
