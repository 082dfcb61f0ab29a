package main

import (
	"context"

	"github.com/diwise/service-chassis/pkg/infrastructure/buildinfo"
	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/go-chi/chi"

	"github.com/diwise/monitoring-gasdetector/internal/pkg/application/configapi"
	"github.com/diwise/monitoring-gasdetector/internal/pkg/application/session"
	"github.com/diwise/monitoring-gasdetector/internal/pkg/infrastructure/router"
	"github.com/diwise/monitoring-gasdetector/internal/pkg/infrastructure/stream"
	"github.com/diwise/monitoring-gasdetector/internal/pkg/infrastructure/ws"
)

const serviceName string = "monitoring-gasdetector"

func main() {
	serviceVersion := buildinfo.SourceVersion()

	ctx, logger, cleanup := o11y.Init(context.Background(), serviceName, serviceVersion)
	defer cleanup()

	apiBaseUrl := env.GetVariableOrDie(logger, "CONFIG_API_BASEURL", "configuration api base url")
	apiKey := env.GetVariableOrDefault(logger, "CONFIG_API_KEY", "")
	brokerUrl := env.GetVariableOrDie(logger, "MQTT_BROKER_URL", "mqtt broker url")
	clientID := env.GetVariableOrDefault(logger, "MQTT_CLIENT_ID", serviceName)
	servicePort := env.GetVariableOrDefault(logger, "SERVICE_PORT", "8080")
	quantity := env.GetVariableOrDefault(logger, "DEFAULT_QUANTITY", "ppm")

	api := configapi.New(apiBaseUrl, apiKey)

	hub := ws.NewHub(logger)
	go hub.Run()

	sessions := session.NewManager(ctx, session.ManagerConfig{
		Quantity:   quantity,
		Thresholds: api,
		Status:     api,
		Listener:   hub,
		Log:        logger,
	})
	defer sessions.CloseAll()

	subscriber := stream.New(stream.Config{
		BrokerURL: brokerUrl,
		ClientID:  clientID,
		Log:       logger,
	}, sessions)

	err := subscriber.Connect(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to push stream")
	}
	defer subscriber.Close()

	r := router.SetupRouter(chi.NewRouter(), logger, api, sessions, hub)

	err = r.Start(servicePort)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start router")
	}
}
