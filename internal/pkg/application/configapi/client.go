package configapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/diwise/monitoring-gasdetector/domain"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

// DeviceConfig is the remote configuration api for deployed detectors.
type DeviceConfig interface {
	GetDevices(ctx context.Context) ([]domain.Device, error)
	GetThreshold(ctx context.Context, serialNumber, indicator string) (*float64, error)
	UpdateThreshold(ctx context.Context, serialNumber, indicator string, value float64) error
	GetIndicatorNames(ctx context.Context, serialNumber string) (map[string]string, error)
	UpdateIndicatorName(ctx context.Context, serialNumber, indicator, displayName string) error
	Ping(ctx context.Context, serialNumber string) (bool, error)
	UpdateReversed(ctx context.Context, serialNumber string, reversed bool) error
}

type deviceConfig struct {
	baseUrl     string
	accessToken string
}

var tracer = otel.Tracer("monitoring-gasdetector/configapi")

func New(baseUrl, apiKey string) DeviceConfig {
	accessToken := ""
	if apiKey != "" {
		accessToken = fmt.Sprintf("Bearer %s", apiKey)
	}

	return &deviceConfig{
		baseUrl:     baseUrl,
		accessToken: accessToken,
	}
}

func (c *deviceConfig) GetDevices(ctx context.Context) ([]domain.Device, error) {
	var err error

	ctx, span := tracer.Start(ctx, "get-devices")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	devices := []domain.Device{}

	var body []byte
	body, err = c.get(ctx, fmt.Sprintf("%s/devices", c.baseUrl))
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(body, &devices)
	if err != nil {
		err = fmt.Errorf("failed to unmarshal device list: %s", err.Error())
		return nil, err
	}

	return devices, nil
}

// GetThreshold fetches the current alarm threshold for one device and
// one indicator. The endpoint has returned three different shapes over
// the years (a flat quantity-named field, a nested thresholds object
// and an array of indicator/threshold rows), all of which are
// tolerated. A missing value resolves to nil, not an error.
func (c *deviceConfig) GetThreshold(ctx context.Context, serialNumber, indicator string) (*float64, error) {
	var err error

	ctx, span := tracer.Start(ctx, "get-threshold")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	var body []byte
	body, err = c.get(ctx, fmt.Sprintf("%s/devices/%s/thresholds", c.baseUrl, serialNumber))
	if err != nil {
		return nil, err
	}

	var value *float64
	value, err = parseThreshold(body, indicator)
	if err != nil {
		return nil, err
	}

	return value, nil
}

func (c *deviceConfig) UpdateThreshold(ctx context.Context, serialNumber, indicator string, value float64) error {
	var err error

	ctx, span := tracer.Start(ctx, "update-threshold")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	payload := struct {
		Indicator string  `json:"indicator"`
		Threshold float64 `json:"threshold"`
	}{indicator, value}

	err = c.put(ctx, fmt.Sprintf("%s/devices/%s/thresholds", c.baseUrl, serialNumber), payload)

	return err
}

func (c *deviceConfig) GetIndicatorNames(ctx context.Context, serialNumber string) (map[string]string, error) {
	var err error

	ctx, span := tracer.Start(ctx, "get-indicator-names")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	var body []byte
	body, err = c.get(ctx, fmt.Sprintf("%s/devices/%s/indicators", c.baseUrl, serialNumber))
	if err != nil {
		return nil, err
	}

	names := map[string]string{}

	err = json.Unmarshal(body, &names)
	if err != nil {
		err = fmt.Errorf("failed to unmarshal indicator names: %s", err.Error())
		return nil, err
	}

	return names, nil
}

func (c *deviceConfig) UpdateIndicatorName(ctx context.Context, serialNumber, indicator, displayName string) error {
	var err error

	ctx, span := tracer.Start(ctx, "update-indicator-name")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	payload := struct {
		DisplayName string `json:"displayName"`
	}{displayName}

	err = c.put(ctx, fmt.Sprintf("%s/devices/%s/indicators/%s", c.baseUrl, serialNumber, indicator), payload)

	return err
}

// Ping reports whether the device is reachable. Online iff the status
// endpoint answers with success.
func (c *deviceConfig) Ping(ctx context.Context, serialNumber string) (bool, error) {
	var err error

	ctx, span := tracer.Start(ctx, "ping-device")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	var req *http.Request
	req, err = c.newRequest(ctx, http.MethodGet, fmt.Sprintf("%s/devices/%s/ping", c.baseUrl, serialNumber), nil)
	if err != nil {
		return false, err
	}

	var resp *http.Response
	resp, err = httpClient().Do(req)
	if err != nil {
		err = fmt.Errorf("ping request failed: %s", err.Error())
		return false, err
	}

	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK, nil
}

func (c *deviceConfig) UpdateReversed(ctx context.Context, serialNumber string, reversed bool) error {
	var err error

	ctx, span := tracer.Start(ctx, "update-reversed")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	payload := struct {
		Reversed bool `json:"reversed"`
	}{reversed}

	err = c.put(ctx, fmt.Sprintf("%s/devices/%s/reversed", c.baseUrl, serialNumber), payload)

	return err
}

func (c *deviceConfig) get(ctx context.Context, url string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %s", err.Error())
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request failed, expected status code %d, got %d", http.StatusOK, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %s", err.Error())
	}

	return body, nil
}

func (c *deviceConfig) put(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %s", err.Error())
	}

	req, err := c.newRequest(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Add("Content-Type", "application/json")

	resp, err := httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %s", err.Error())
	}

	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("request failed, expected status code %d or %d, got %d", http.StatusOK, http.StatusNoContent, resp.StatusCode)
	}

	return nil
}

func (c *deviceConfig) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %s", err.Error())
	}

	req.Header.Add("Accept", "application/json")
	if c.accessToken != "" {
		req.Header.Add("Authorization", c.accessToken)
	}

	return req, nil
}

func httpClient() *http.Client {
	return &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

type thresholdRow struct {
	Indicator string          `json:"indicator"`
	Threshold json.RawMessage `json:"threshold"`
}

func parseThreshold(body []byte, indicator string) (*float64, error) {
	rows := []thresholdRow{}

	if err := json.Unmarshal(body, &rows); err == nil {
		for _, row := range rows {
			if strings.EqualFold(row.Indicator, indicator) {
				return asNumber(row.Threshold), nil
			}
		}
		return nil, nil
	}

	obj := map[string]json.RawMessage{}

	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("failed to unmarshal threshold response: %s", err.Error())
	}

	if raw, ok := obj["thresholds"]; ok {
		nested := map[string]json.RawMessage{}
		if err := json.Unmarshal(raw, &nested); err != nil {
			return nil, fmt.Errorf("failed to unmarshal nested thresholds: %s", err.Error())
		}
		obj = nested
	}

	for key, raw := range obj {
		if strings.EqualFold(key, indicator) {
			return asNumber(raw), nil
		}
	}

	return nil, nil
}

func asNumber(raw json.RawMessage) *float64 {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return &parsed
		}
	}

	return nil
}
