package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi"
	"github.com/matryer/is"
	"github.com/rs/zerolog"

	"github.com/diwise/monitoring-gasdetector/domain"
	"github.com/diwise/monitoring-gasdetector/internal/pkg/application/session"
)

func TestThatHealthEndpointReturns204(t *testing.T) {
	is := is.New(t)

	r, _ := newRouterForTesting()
	ts := httptest.NewServer(r.router)
	defer ts.Close()

	resp, _ := testRequest(is, ts, "GET", "/health", nil)

	is.Equal(resp.StatusCode, http.StatusNoContent) // health endpoint status code not ok
}

func TestListDevices(t *testing.T) {
	is := is.New(t)

	r, _ := newRouterForTesting()
	ts := httptest.NewServer(r.router)
	defer ts.Close()

	resp, body := testRequest(is, ts, "GET", "/api/devices", nil)

	is.Equal(resp.StatusCode, http.StatusOK)

	devices := []domain.Device{}
	is.NoErr(json.Unmarshal([]byte(body), &devices))
	is.Equal(len(devices), 1)
	is.Equal(devices[0].SerialNumber, "1337")
}

func TestReadingsRequireAnOpenSession(t *testing.T) {
	is := is.New(t)

	r, _ := newRouterForTesting()
	ts := httptest.NewServer(r.router)
	defer ts.Close()

	resp, _ := testRequest(is, ts, "GET", "/api/devices/1337/readings", nil)

	is.Equal(resp.StatusCode, http.StatusNotFound)
}

func TestOpenSessionThenIndicator(t *testing.T) {
	is := is.New(t)

	r, _ := newRouterForTesting()
	ts := httptest.NewServer(r.router)
	defer ts.Close()

	resp, _ := testRequest(is, ts, "POST", "/api/devices/1337/session", nil)
	is.Equal(resp.StatusCode, http.StatusCreated)

	resp, body := testRequest(is, ts, "GET", "/api/devices/1337/indicator", nil)
	is.Equal(resp.StatusCode, http.StatusOK)

	ind := domain.Indicator{}
	is.NoErr(json.Unmarshal([]byte(body), &ind))
	is.Equal(ind.Color, ind.State.Color())
}

func TestCloseSession(t *testing.T) {
	is := is.New(t)

	r, _ := newRouterForTesting()
	ts := httptest.NewServer(r.router)
	defer ts.Close()

	testRequest(is, ts, "POST", "/api/devices/1337/session", nil)

	resp, _ := testRequest(is, ts, "DELETE", "/api/devices/1337/session", nil)
	is.Equal(resp.StatusCode, http.StatusNoContent)

	resp, _ = testRequest(is, ts, "DELETE", "/api/devices/1337/session", nil)
	is.Equal(resp.StatusCode, http.StatusNotFound)
}

func TestAlarmsReportUnconfiguredThreshold(t *testing.T) {
	is := is.New(t)

	r, _ := newRouterForTesting()
	ts := httptest.NewServer(r.router)
	defer ts.Close()

	testRequest(is, ts, "POST", "/api/devices/1337/session", nil)

	resp, body := testRequest(is, ts, "GET", "/api/devices/1337/alarms", nil)
	is.Equal(resp.StatusCode, http.StatusOK)

	result := struct {
		Configured bool   `json:"configured"`
		Message    string `json:"message"`
	}{}
	is.NoErr(json.Unmarshal([]byte(body), &result))
	is.True(!result.Configured)
	is.True(result.Message != "")
}

func TestPutThresholdRejectsNonNumericInput(t *testing.T) {
	is := is.New(t)

	r, api := newRouterForTesting()
	ts := httptest.NewServer(r.router)
	defer ts.Close()

	testRequest(is, ts, "POST", "/api/devices/1337/session", nil)

	resp, _ := testRequest(is, ts, "PUT", "/api/devices/1337/threshold", bytes.NewBufferString(`{"threshold":"abc"}`))
	is.Equal(resp.StatusCode, http.StatusBadRequest)

	api.mu.Lock()
	is.Equal(len(api.savedThresholds), 0) // no partial state mutation
	api.mu.Unlock()

	resp, _ = testRequest(is, ts, "PUT", "/api/devices/1337/threshold", bytes.NewBufferString(`not json`))
	is.Equal(resp.StatusCode, http.StatusBadRequest)
}

func TestPutThresholdSavesBeforeMutating(t *testing.T) {
	is := is.New(t)

	r, api := newRouterForTesting()
	ts := httptest.NewServer(r.router)
	defer ts.Close()

	testRequest(is, ts, "POST", "/api/devices/1337/session", nil)

	resp, _ := testRequest(is, ts, "PUT", "/api/devices/1337/threshold", bytes.NewBufferString(`{"threshold":50}`))
	is.Equal(resp.StatusCode, http.StatusNoContent)

	api.mu.Lock()
	is.Equal(api.savedThresholds["1337"], 50.0)
	api.mu.Unlock()

	resp, body := testRequest(is, ts, "GET", "/api/devices/1337/threshold", nil)
	is.Equal(resp.StatusCode, http.StatusOK)

	result := struct {
		Indicator string   `json:"indicator"`
		Threshold *float64 `json:"threshold"`
	}{}
	is.NoErr(json.Unmarshal([]byte(body), &result))
	is.Equal(result.Indicator, "ppm")
	is.True(result.Threshold != nil)
	is.Equal(*result.Threshold, 50.0)
}

func TestRenameIndicatorRejectsEmptyName(t *testing.T) {
	is := is.New(t)

	r, _ := newRouterForTesting()
	ts := httptest.NewServer(r.router)
	defer ts.Close()

	resp, _ := testRequest(is, ts, "PUT", "/api/devices/1337/indicators/ppm", bytes.NewBufferString(`{"displayName":"  "}`))
	is.Equal(resp.StatusCode, http.StatusBadRequest)

	resp, _ = testRequest(is, ts, "PUT", "/api/devices/1337/indicators/ppm", bytes.NewBufferString(`{"displayName":"Gas (PPM)"}`))
	is.Equal(resp.StatusCode, http.StatusNoContent)
}

func TestGraphEndpointServesSenML(t *testing.T) {
	is := is.New(t)

	r, _ := newRouterForTesting()
	ts := httptest.NewServer(r.router)
	defer ts.Close()

	testRequest(is, ts, "POST", "/api/devices/1337/session", nil)

	resp, _ := testRequest(is, ts, "GET", "/api/devices/1337/graph", nil)

	is.Equal(resp.StatusCode, http.StatusOK)
	is.Equal(resp.Header.Get("Content-Type"), "application/senml+json")
}

type fakeDeviceConfig struct {
	mu              sync.Mutex
	savedThresholds map[string]float64
}

func (f *fakeDeviceConfig) GetDevices(ctx context.Context) ([]domain.Device, error) {
	return []domain.Device{{SerialNumber: "1337", DeviceName: "Pump room east"}}, nil
}

func (f *fakeDeviceConfig) GetThreshold(ctx context.Context, serialNumber, indicator string) (*float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if v, ok := f.savedThresholds[serialNumber]; ok {
		return &v, nil
	}

	return nil, nil
}

func (f *fakeDeviceConfig) UpdateThreshold(ctx context.Context, serialNumber, indicator string, value float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.savedThresholds[serialNumber] = value

	return nil
}

func (f *fakeDeviceConfig) GetIndicatorNames(ctx context.Context, serialNumber string) (map[string]string, error) {
	return map[string]string{}, nil
}

func (f *fakeDeviceConfig) UpdateIndicatorName(ctx context.Context, serialNumber, indicator, displayName string) error {
	return nil
}

func (f *fakeDeviceConfig) Ping(ctx context.Context, serialNumber string) (bool, error) {
	return true, nil
}

func (f *fakeDeviceConfig) UpdateReversed(ctx context.Context, serialNumber string, reversed bool) error {
	return nil
}

func newRouterForTesting() (*routerStruct, *fakeDeviceConfig) {
	log := zerolog.Nop()
	api := &fakeDeviceConfig{savedThresholds: map[string]float64{}}

	sessions := session.NewManager(context.Background(), session.ManagerConfig{
		Thresholds: api,
		Status:     api,
		Log:        log,
	})

	return SetupRouter(chi.NewRouter(), log, api, sessions, nil), api
}

func testRequest(is *is.I, ts *httptest.Server, method, path string, body io.Reader) (*http.Response, string) {
	req, _ := http.NewRequest(method, ts.URL+path, body)
	resp, _ := http.DefaultClient.Do(req)
	respBody, _ := io.ReadAll(resp.Body)
	defer resp.Body.Close()

	return resp, string(respBody)
}
