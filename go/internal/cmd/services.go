package main

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/okaplan/seawatch/go/internal/alertbus"
	"github.com/okaplan/seawatch/go/internal/carts"
	"github.com/okaplan/seawatch/go/internal/dives"
	"github.com/okaplan/seawatch/go/internal/engine"
	"github.com/okaplan/seawatch/go/internal/events"
	"github.com/okaplan/seawatch/go/internal/gateway"
)

// Services is the wired application graph.
type Services struct {
	Dives     *dives.App
	Carts     *carts.App
	Events    *events.App
	Engine    *engine.Engine
	Hub       *gateway.Hub
	Publisher *alertbus.Publisher
}

func setupServices(pool *pgxpool.Pool, config *Config) (*Services, error) {
	// Repository layer → engine → app layer.
	divesRepo := dives.NewRepository(pool)
	cartsRepo := carts.NewRepository(pool)
	eventsRepo := events.NewRepository(pool)

	hubConfig := gateway.DefaultConnectionConfig()
	hubConfig.PingInterval = config.pingInterval()
	hub := gateway.NewHub(hubConfig)

	broadcasters := []engine.Broadcaster{hub}

	var publisher *alertbus.Publisher
	if config.Nats.Enabled {
		busConfig := alertbus.DefaultJetStreamConfig()
		if config.Nats.URL != "" {
			busConfig.URL = config.Nats.URL
		}
		var err error
		publisher, err = alertbus.NewPublisher(busConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to set up alert bus: %w", err)
		}
		broadcasters = append(broadcasters, publisher)
	}

	timerSource := carts.NewTimerSource(cartsRepo, divesRepo)
	eng := engine.New(timerSource, eventsRepo, clockwork.NewRealClock(), broadcasters...)

	eventsApp := events.NewApp(eventsRepo)
	divesApp := dives.NewApp(divesRepo, eng)
	cartsApp := carts.NewApp(cartsRepo, eventsApp, divesApp, eng)

	return &Services{
		Dives:     divesApp,
		Carts:     cartsApp,
		Events:    eventsApp,
		Engine:    eng,
		Hub:       hub,
		Publisher: publisher,
	}, nil
}
