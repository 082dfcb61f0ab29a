package domain

import "time"

type Device struct {
	SerialNumber string `json:"serialNumber"`
	DeviceName   string `json:"deviceName"`
}

// Reading is one accepted telemetry value. Value is nil when the raw
// value could not be coerced to a number; RawValue always holds the
// original representation for display.
type Reading struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	IndicatorKey string    `json:"indicatorKey"`
	Value        *float64  `json:"value"`
	RawValue     string    `json:"rawValue"`
	Fingerprint  string    `json:"-"`
}

type IndicatorState int

const (
	StateOffline IndicatorState = iota
	StateOk
	StateAlarm
)

func (s IndicatorState) String() string {
	switch s {
	case StateOk:
		return "ok"
	case StateAlarm:
		return "alarm"
	default:
		return "offline"
	}
}

func (s IndicatorState) Color() string {
	switch s {
	case StateOk:
		return "green"
	case StateAlarm:
		return "red"
	default:
		return "gray"
	}
}

// Indicator is the single current value shown by the big indicator.
type Indicator struct {
	State    IndicatorState `json:"state"`
	Color    string         `json:"color"`
	Value    *float64       `json:"value"`
	RawValue string         `json:"rawValue,omitempty"`
	Online   bool           `json:"online"`
}

// StatusEvent is a push-delivered device status change. Status is kept
// untyped because brokers deliver it as a string, a number or a bool.
type StatusEvent struct {
	SerialNumber string `json:"serialNumber"`
	Status       any    `json:"status"`
}

// ThresholdEvent is a push-delivered threshold change for one device
// and one indicator.
type ThresholdEvent struct {
	SerialNumber string  `json:"serialNumber"`
	Indicator    string  `json:"indicator"`
	Threshold    float64 `json:"threshold"`
}
