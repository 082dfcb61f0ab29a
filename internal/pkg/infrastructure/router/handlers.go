package router

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi"

	"github.com/diwise/monitoring-gasdetector/internal/pkg/application/feed"
	"github.com/diwise/monitoring-gasdetector/internal/pkg/application/session"
)

func (router *routerStruct) listDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := router.api.GetDevices(r.Context())
	if err != nil {
		router.log.Error().Err(err).Msg("failed to retrieve device list")
		writeError(w, http.StatusBadGateway, "failed to retrieve device list")
		return
	}

	writeJSON(w, http.StatusOK, devices)
}

func (router *routerStruct) openSession(w http.ResponseWriter, r *http.Request) {
	serialNumber := chi.URLParam(r, "serial")

	s := router.sessions.Open(serialNumber)

	writeJSON(w, http.StatusCreated, s.Indicator())
}

func (router *routerStruct) closeSession(w http.ResponseWriter, r *http.Request) {
	serialNumber := chi.URLParam(r, "serial")

	if !router.sessions.Close(serialNumber) {
		writeError(w, http.StatusNotFound, "no session open for device")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (router *routerStruct) focusSession(w http.ResponseWriter, r *http.Request) {
	s, ok := router.sessionFor(w, r)
	if !ok {
		return
	}

	s.Focus(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (router *routerStruct) blurSession(w http.ResponseWriter, r *http.Request) {
	s, ok := router.sessionFor(w, r)
	if !ok {
		return
	}

	s.Blur()
	w.WriteHeader(http.StatusNoContent)
}

func (router *routerStruct) readings(w http.ResponseWriter, r *http.Request) {
	s, ok := router.sessionFor(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, s.Readings())
}

func (router *routerStruct) graph(w http.ResponseWriter, r *http.Request) {
	s, ok := router.sessionFor(w, r)
	if !ok {
		return
	}

	pack := feed.BuildPack(s.SerialNumber(), s.GraphReadings())

	w.Header().Add("Content-Type", "application/senml+json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(pack)
}

func (router *routerStruct) indicator(w http.ResponseWriter, r *http.Request) {
	s, ok := router.sessionFor(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, s.Indicator())
}

func (router *routerStruct) alarms(w http.ResponseWriter, r *http.Request) {
	s, ok := router.sessionFor(w, r)
	if !ok {
		return
	}

	alarms, configured := s.Alarms()

	if !configured {
		writeJSON(w, http.StatusOK, map[string]any{
			"configured": false,
			"message":    "no alarm threshold has been configured for this device",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"configured": true,
		"alarms":     alarms,
	})
}

func (router *routerStruct) getThreshold(w http.ResponseWriter, r *http.Request) {
	s, ok := router.sessionFor(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"indicator": s.Quantity(),
		"threshold": s.Threshold(),
	})
}

// putThreshold validates the edit, persists it via the configuration
// api and only mutates session state once the save is confirmed.
func (router *routerStruct) putThreshold(w http.ResponseWriter, r *http.Request) {
	s, ok := router.sessionFor(w, r)
	if !ok {
		return
	}

	body := struct {
		Threshold any `json:"threshold"`
	}{}

	err := json.NewDecoder(r.Body).Decode(&body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	value, ok := numericThreshold(body.Threshold)
	if !ok {
		writeError(w, http.StatusBadRequest, "threshold must be numeric")
		return
	}

	err = router.api.UpdateThreshold(r.Context(), s.SerialNumber(), s.Quantity(), value)
	if err != nil {
		router.log.Error().Err(err).Msg("failed to save threshold")
		writeError(w, http.StatusBadGateway, "failed to save threshold, please retry")
		return
	}

	s.SetThreshold(&value)

	w.WriteHeader(http.StatusNoContent)
}

func (router *routerStruct) indicatorNames(w http.ResponseWriter, r *http.Request) {
	serialNumber := chi.URLParam(r, "serial")

	names, err := router.api.GetIndicatorNames(r.Context(), serialNumber)
	if err != nil {
		router.log.Error().Err(err).Msg("failed to retrieve indicator names")
		writeError(w, http.StatusBadGateway, "failed to retrieve indicator names")
		return
	}

	writeJSON(w, http.StatusOK, names)
}

func (router *routerStruct) renameIndicator(w http.ResponseWriter, r *http.Request) {
	serialNumber := chi.URLParam(r, "serial")
	indicator := chi.URLParam(r, "indicator")

	body := struct {
		DisplayName string `json:"displayName"`
	}{}

	err := json.NewDecoder(r.Body).Decode(&body)
	if err != nil || strings.TrimSpace(body.DisplayName) == "" {
		writeError(w, http.StatusBadRequest, "displayName must be a non-empty string")
		return
	}

	err = router.api.UpdateIndicatorName(r.Context(), serialNumber, indicator, body.DisplayName)
	if err != nil {
		router.log.Error().Err(err).Msg("failed to save indicator name")
		writeError(w, http.StatusBadGateway, "failed to save indicator name, please retry")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (router *routerStruct) reverse(w http.ResponseWriter, r *http.Request) {
	serialNumber := chi.URLParam(r, "serial")

	body := struct {
		Reversed *bool `json:"reversed"`
	}{}

	err := json.NewDecoder(r.Body).Decode(&body)
	if err != nil || body.Reversed == nil {
		writeError(w, http.StatusBadRequest, "reversed must be a boolean")
		return
	}

	err = router.api.UpdateReversed(r.Context(), serialNumber, *body.Reversed)
	if err != nil {
		router.log.Error().Err(err).Msg("failed to save reverse flag")
		writeError(w, http.StatusBadGateway, "failed to save reverse flag, please retry")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (router *routerStruct) clear(w http.ResponseWriter, r *http.Request) {
	s, ok := router.sessionFor(w, r)
	if !ok {
		return
	}

	s.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (router *routerStruct) serveWS(w http.ResponseWriter, r *http.Request) {
	if router.hub == nil {
		writeError(w, http.StatusNotImplemented, "live feed not available")
		return
	}

	serialNumber := chi.URLParam(r, "serial")

	if _, ok := router.sessions.Get(serialNumber); !ok {
		writeError(w, http.StatusNotFound, "no session open for device")
		return
	}

	router.hub.ServeWS(w, r, serialNumber)
}

func (router *routerStruct) sessionFor(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	serialNumber := chi.URLParam(r, "serial")

	s, ok := router.sessions.Get(serialNumber)
	if !ok {
		writeError(w, http.StatusNotFound, "no session open for device")
		return nil, false
	}

	return s, true
}

func numericThreshold(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
