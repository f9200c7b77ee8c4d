// Package api serves controller status and clock control over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/itohio/plantcare/pkg/plant"
	"github.com/itohio/plantcare/pkg/rtc"
	"github.com/itohio/plantcare/pkg/sample"
	"github.com/itohio/plantcare/pkg/telemetry"
)

const clockTimeout = 2 * time.Second

// StatusSource provides controller snapshots.
type StatusSource interface {
	Status() plant.Status
}

type handler struct {
	status StatusSource
	clock  plant.Clock
	log    *slog.Logger
}

// NewRouter builds the API router. metrics may be nil.
func NewRouter(status StatusSource, clock plant.Clock, metrics http.Handler, log *slog.Logger) *mux.Router {
	if log == nil {
		log = slog.Default()
	}
	h := &handler{status: status, clock: clock, log: log}

	r := mux.NewRouter()
	r.Use(h.logRequests)

	r.HandleFunc("/health", healthHandler).Methods("GET")
	r.HandleFunc("/status", h.getStatus).Methods("GET")
	r.HandleFunc("/clock", h.getClock).Methods("GET")
	r.HandleFunc("/clock", h.putClock).Methods("PUT")
	if metrics != nil {
		r.Handle("/metrics", metrics).Methods("GET")
	}

	return r
}

type statusResponse struct {
	HasReadings  bool                `json:"has_readings"`
	Ambient      string              `json:"ambient"`
	Plant        string              `json:"plant"`
	UV           uint8               `json:"uv"`
	Volts        voltages            `json:"volts"`
	Raw          map[string][]uint16 `json:"raw,omitempty"`
	Time         rtc.Time            `json:"time"`
	LastPacket   *telemetry.Packet   `json:"last_packet"`
	TimesWatered uint8               `json:"times_watered"`
	LastWatered  string              `json:"last_watered,omitempty"`
	DisplayLevel uint8               `json:"display_level"`

	Cycles         uint64 `json:"cycles"`
	CyclesDropped  uint64 `json:"cycles_dropped"`
	PacketsSent    uint64 `json:"packets_sent"`
	PacketsDropped uint64 `json:"packets_dropped"`
	Faults         uint64 `json:"faults"`
	LastError      string `json:"last_error,omitempty"`
}

type voltages struct {
	Ambient float32 `json:"ambient"`
	Plant   float32 `json:"plant"`
	UV      float32 `json:"uv"`
}

func newStatusResponse(s plant.Status) statusResponse {
	resp := statusResponse{
		HasReadings:    s.HasReadings,
		UV:             s.Readings.UV,
		Time:           s.Time,
		TimesWatered:   s.Water.TimesWatered,
		DisplayLevel:   s.DisplayLevel,
		Cycles:         s.Cycles,
		CyclesDropped:  s.CyclesDropped,
		PacketsSent:    s.PacketsSent,
		PacketsDropped: s.PacketsDropped,
		Faults:         s.Faults,
		LastError:      s.LastError,
		Volts: voltages{
			Ambient: s.Readings.AmbientVolts,
			Plant:   s.Readings.PlantVolts,
			UV:      s.Readings.UVVolts,
		},
	}
	if s.HasReadings {
		resp.Raw = make(map[string][]uint16, len(s.Raw))
		for ch, values := range s.Raw {
			resp.Raw[sample.Channel(ch).String()] = values
		}
		resp.Ambient = fmt.Sprintf("%d.%d", s.Readings.Ambient.Int, s.Readings.Ambient.Dec)
		resp.Plant = fmt.Sprintf("%d.%d", s.Readings.Plant.Int, s.Readings.Plant.Dec)
	}
	if s.PacketsSent > 0 {
		p := s.LastPacket
		resp.LastPacket = &p
	}
	if s.Water.TimesWatered > 0 || s.Water.LastMove > 0 {
		last := s.Water.LastMove
		resp.LastWatered = rtc.Time{Hours: uint8(last / 3600), Minutes: uint8(last % 3600 / 60)}.String()
	}
	return resp
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) getStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, newStatusResponse(h.status.Status()))
}

func (h *handler) getClock(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), clockTimeout)
	defer cancel()

	t, err := h.clock.GetTime(ctx)
	if err != nil {
		h.log.Warn("clock read failed", "err", err)
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *handler) putClock(w http.ResponseWriter, r *http.Request) {
	var t rtc.Time
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}
	if !t.Valid() {
		writeError(w, http.StatusBadRequest, errors.New("time out of range"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), clockTimeout)
	defer cancel()

	if err := h.clock.SetTime(ctx, t); err != nil {
		h.log.Warn("clock write failed", "err", err)
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	h.log.Info("clock set", "time", t)
	writeJSON(w, http.StatusOK, t)
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.log.Debug("http request", "method", r.Method, "path", r.URL.Path, "took", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
