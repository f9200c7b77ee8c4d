package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/plantcare/pkg/plant"
	"github.com/itohio/plantcare/pkg/rtc"
	"github.com/itohio/plantcare/pkg/sample"
	"github.com/itohio/plantcare/pkg/telemetry"
	"github.com/itohio/plantcare/pkg/water"
)

type fixedStatus plant.Status

func (s fixedStatus) Status() plant.Status { return plant.Status(s) }

type fakeClock struct {
	t   rtc.Time
	err error
}

func (c *fakeClock) GetTime(context.Context) (rtc.Time, error) { return c.t, c.err }

func (c *fakeClock) SetTime(_ context.Context, t rtc.Time) error {
	if c.err != nil {
		return c.err
	}
	c.t = t
	return nil
}

func newTestRouter(s plant.Status, clock *fakeClock) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "test_total", Help: "Test."}))
	return NewRouter(fixedStatus(s), clock, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil)
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(newTestRouter(plant.Status{}, &fakeClock{}), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestGetStatus(t *testing.T) {
	s := plant.Status{
		Readings: sample.Readings{
			Ambient: sample.Temperature{Int: 11, Dec: 0},
			Plant:   sample.Temperature{Int: 10, Dec: 7},
			UV:      4,
		},
		Raw:          [sample.NumChannels][]uint16{{1000, 1010, 1020}, {1005, 1015, 1025}, {620, 620, 620}},
		HasReadings:  true,
		Time:         rtc.Time{Hours: 9, Minutes: 15},
		LastPacket:   telemetry.Packet{9, 15, 11, 0, 10, 7, 1},
		Water:        water.State{LastMove: 9 * 3600, Cooldown: 600, TimesWatered: 1},
		DisplayLevel: 4,
		Cycles:       3,
		PacketsSent:  2,
		Faults:       1,
		LastError:    "clock: nack",
	}

	rec := do(newTestRouter(s, &fakeClock{}), http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "11.0", got["ambient"])
	assert.Equal(t, "10.7", got["plant"])
	assert.Equal(t, 4.0, got["uv"])
	assert.Equal(t, "09:00", got["last_watered"])
	assert.Equal(t, []any{9.0, 15.0, 11.0, 0.0, 10.0, 7.0, 1.0}, got["last_packet"])
	assert.Equal(t, map[string]any{"hours": 9.0, "minutes": 15.0}, got["time"])
	assert.Equal(t, "clock: nack", got["last_error"])
	assert.Equal(t, map[string]any{
		"ambient": []any{1000.0, 1010.0, 1020.0},
		"plant":   []any{1005.0, 1015.0, 1025.0},
		"uv":      []any{620.0, 620.0, 620.0},
	}, got["raw"])
}

func TestGetStatus_Empty(t *testing.T) {
	rec := do(newTestRouter(plant.Status{}, &fakeClock{}), http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, false, got["has_readings"])
	assert.Equal(t, "", got["ambient"])
	assert.Nil(t, got["last_packet"])
	assert.NotContains(t, got, "last_watered")
	assert.NotContains(t, got, "raw")
}

func TestClock(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		body     string
		clockErr error
		wantCode int
		wantTime rtc.Time
	}{
		{"get", http.MethodGet, "", nil, http.StatusOK, rtc.Time{Hours: 7, Minutes: 45}},
		{"set", http.MethodPut, `{"hours":9,"minutes":0}`, nil, http.StatusOK, rtc.Time{Hours: 9}},
		{"set out of range", http.MethodPut, `{"hours":24,"minutes":0}`, nil, http.StatusBadRequest, rtc.Time{Hours: 7, Minutes: 45}},
		{"set unknown field", http.MethodPut, `{"hours":9,"seconds":3}`, nil, http.StatusBadRequest, rtc.Time{Hours: 7, Minutes: 45}},
		{"set malformed", http.MethodPut, `{`, nil, http.StatusBadRequest, rtc.Time{Hours: 7, Minutes: 45}},
		{"get bus error", http.MethodGet, "", errors.New("i2c: timeout"), http.StatusServiceUnavailable, rtc.Time{Hours: 7, Minutes: 45}},
		{"set bus error", http.MethodPut, `{"hours":9,"minutes":0}`, errors.New("i2c: nack"), http.StatusServiceUnavailable, rtc.Time{Hours: 7, Minutes: 45}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{t: rtc.Time{Hours: 7, Minutes: 45}, err: tt.clockErr}
			rec := do(newTestRouter(plant.Status{}, clock), tt.method, "/clock", tt.body)

			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantTime, clock.t)
			if tt.wantCode == http.StatusOK {
				var got rtc.Time
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
				assert.Equal(t, tt.wantTime, got)
			} else {
				assert.Contains(t, rec.Body.String(), `"error"`)
			}
		})
	}
}

func TestMetrics(t *testing.T) {
	rec := do(newTestRouter(plant.Status{}, &fakeClock{}), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_total 0")
}

func TestMethodNotAllowed(t *testing.T) {
	rec := do(newTestRouter(plant.Status{}, &fakeClock{}), http.MethodPost, "/clock", "{}")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
