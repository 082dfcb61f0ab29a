package router

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/diwise/monitoring-gasdetector/internal/pkg/application/configapi"
	"github.com/diwise/monitoring-gasdetector/internal/pkg/application/session"
	"github.com/diwise/monitoring-gasdetector/internal/pkg/infrastructure/ws"
)

type Router interface {
	Start(port string) error
}

type routerStruct struct {
	router   chi.Router
	log      zerolog.Logger
	api      configapi.DeviceConfig
	sessions *session.Manager
	hub      *ws.Hub
}

func SetupRouter(chiRouter chi.Router, log zerolog.Logger, api configapi.DeviceConfig, sessions *session.Manager, hub *ws.Hub) *routerStruct {
	r := &routerStruct{
		router:   chiRouter,
		log:      log,
		api:      api,
		sessions: sessions,
		hub:      hub,
	}

	chiRouter.Use(middleware.Logger)

	chiRouter.Get("/health", r.health)
	chiRouter.Get("/metrics", promhttp.Handler().ServeHTTP)

	chiRouter.Route("/api/devices", func(devices chi.Router) {
		devices.Get("/", r.listDevices)

		devices.Route("/{serial}", func(device chi.Router) {
			device.Post("/session", r.openSession)
			device.Delete("/session", r.closeSession)
			device.Post("/session/focus", r.focusSession)
			device.Post("/session/blur", r.blurSession)

			device.Get("/readings", r.readings)
			device.Get("/graph", r.graph)
			device.Get("/indicator", r.indicator)
			device.Get("/alarms", r.alarms)

			device.Get("/threshold", r.getThreshold)
			device.Put("/threshold", r.putThreshold)

			device.Get("/indicators", r.indicatorNames)
			device.Put("/indicators/{indicator}", r.renameIndicator)
			device.Put("/reversed", r.reverse)

			device.Post("/clear", r.clear)
			device.Get("/ws", r.serveWS)
		})
	})

	return r
}

func (r *routerStruct) Start(port string) error {
	r.log.Info().Str("port", port).Msg("starting to listen for connections")
	return http.ListenAndServe(fmt.Sprintf(":%s", port), r.router)
}

func (router *routerStruct) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
