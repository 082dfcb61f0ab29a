package configapi

import (
	"context"
	"net/http"
	"testing"

	testutils "github.com/diwise/service-chassis/pkg/test/http"
	"github.com/diwise/service-chassis/pkg/test/http/expects"
	"github.com/diwise/service-chassis/pkg/test/http/response"
	"github.com/matryer/is"
)

var Expects = testutils.Expects
var Returns = testutils.Returns
var method = expects.RequestMethod

func TestGetDevices(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(
			is,
			method(http.MethodGet),
		),
		Returns(
			response.Code(http.StatusOK),
			response.Body([]byte(`[{"serialNumber":"1337","deviceName":"Pump room east"}]`)),
		),
	)

	c := New(s.URL(), "")

	devices, err := c.GetDevices(context.Background())
	is.NoErr(err)
	is.Equal(len(devices), 1)
	is.Equal(devices[0].SerialNumber, "1337")
}

func TestGetDevicesFailsIfResponseCodeIsNotOK(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(
			is,
			method(http.MethodGet),
		),
		Returns(
			response.Code(http.StatusNotFound),
			response.Body([]byte("")),
		),
	)

	c := New(s.URL(), "")

	devices, err := c.GetDevices(context.Background())
	is.True(err != nil)
	is.True(devices == nil)
}

func TestGetThresholdFlatShape(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(
			is,
			method(http.MethodGet),
		),
		Returns(
			response.Code(http.StatusOK),
			response.Body([]byte(`{"ppm":50}`)),
		),
	)

	c := New(s.URL(), "")

	value, err := c.GetThreshold(context.Background(), "1337", "ppm")
	is.NoErr(err)
	is.True(value != nil)
	is.Equal(*value, 50.0)
}

func TestGetThresholdNestedShape(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(
			is,
			method(http.MethodGet),
		),
		Returns(
			response.Code(http.StatusOK),
			response.Body([]byte(`{"thresholds":{"PPM":"62.5"}}`)),
		),
	)

	c := New(s.URL(), "")

	value, err := c.GetThreshold(context.Background(), "1337", "ppm")
	is.NoErr(err)
	is.True(value != nil)
	is.Equal(*value, 62.5)
}

func TestGetThresholdArrayShape(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(
			is,
			method(http.MethodGet),
		),
		Returns(
			response.Code(http.StatusOK),
			response.Body([]byte(`[{"indicator":"temperature","threshold":30},{"indicator":"ppm","threshold":50}]`)),
		),
	)

	c := New(s.URL(), "")

	value, err := c.GetThreshold(context.Background(), "1337", "ppm")
	is.NoErr(err)
	is.True(value != nil)
	is.Equal(*value, 50.0)
}

func TestGetThresholdResolvesToNilWhenUnconfigured(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(
			is,
			method(http.MethodGet),
		),
		Returns(
			response.Code(http.StatusOK),
			response.Body([]byte(`{"thresholds":{}}`)),
		),
	)

	c := New(s.URL(), "")

	value, err := c.GetThreshold(context.Background(), "1337", "ppm")
	is.NoErr(err)
	is.True(value == nil)
}

func TestGetThresholdFailsIfResponseCodeIsNotOK(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(
			is,
			method(http.MethodGet),
		),
		Returns(
			response.Code(http.StatusInternalServerError),
			response.Body([]byte("")),
		),
	)

	c := New(s.URL(), "")

	_, err := c.GetThreshold(context.Background(), "1337", "ppm")
	is.True(err != nil)
}

func TestUpdateThreshold(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(
			is,
			method(http.MethodPut),
		),
		Returns(
			response.Code(http.StatusNoContent),
			response.Body([]byte("")),
		),
	)

	c := New(s.URL(), "")

	err := c.UpdateThreshold(context.Background(), "1337", "ppm", 50)
	is.NoErr(err)
}

func TestPingOnlineWhenResponseIsSuccess(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(
			is,
			method(http.MethodGet),
		),
		Returns(
			response.Code(http.StatusOK),
			response.Body([]byte("")),
		),
	)

	c := New(s.URL(), "")

	online, err := c.Ping(context.Background(), "1337")
	is.NoErr(err)
	is.True(online)
}

func TestPingOfflineWhenResponseIsNotSuccess(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(
			is,
			method(http.MethodGet),
		),
		Returns(
			response.Code(http.StatusServiceUnavailable),
			response.Body([]byte("")),
		),
	)

	c := New(s.URL(), "")

	online, err := c.Ping(context.Background(), "1337")
	is.NoErr(err)
	is.True(!online)
}

func TestParseThresholdTolerantOfQuotedNumbers(t *testing.T) {
	is := is.New(t)

	value, err := parseThreshold([]byte(`[{"indicator":"ppm","threshold":"50"}]`), "ppm")
	is.NoErr(err)
	is.True(value != nil)
	is.Equal(*value, 50.0)
}

func TestParseThresholdRejectsJunk(t *testing.T) {
	is := is.New(t)

	_, err := parseThreshold([]byte(`"fifty"`), "ppm")
	is.True(err != nil)
}
