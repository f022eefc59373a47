// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tomtom215/hydra/internal/api"
	"github.com/tomtom215/hydra/internal/classifier"
	"github.com/tomtom215/hydra/internal/config"
	"github.com/tomtom215/hydra/internal/detection"
	"github.com/tomtom215/hydra/internal/enrich"
	"github.com/tomtom215/hydra/internal/escalation"
	"github.com/tomtom215/hydra/internal/eventbus"
	"github.com/tomtom215/hydra/internal/ingest"
	"github.com/tomtom215/hydra/internal/logging"
	"github.com/tomtom215/hydra/internal/models"
	"github.com/tomtom215/hydra/internal/producer"
	"github.com/tomtom215/hydra/internal/storage"
	"github.com/tomtom215/hydra/internal/supervisor"
	"github.com/tomtom215/hydra/internal/supervisor/services"
	"github.com/tomtom215/hydra/internal/websocket"
	"github.com/tomtom215/hydra/internal/window"
)

// Bus stage names. Each stage has its own subscription, so a slow
// escalation never delays correlation.
const (
	stageCorrelate = "correlate"
	stageEscalate  = "escalate"
	stageEnrich    = "enrich"
)

// pipeline holds every long-lived component.
type pipeline struct {
	cfg *config.Config

	store       storage.Store
	window      *window.Store
	hub         *websocket.Hub
	engine      *detection.Engine
	gateway     *ingest.Gateway
	bus         *eventbus.Bus
	broker      *eventbus.EmbeddedServer
	coordinator *escalation.Coordinator
	enricher    *enrich.Enricher
	registry    *producer.Registry
	producers   []*producer.Service
	server      *http.Server
}

// buildPipeline constructs and wires the components. Nothing runs until
// the services are added to a supervisor tree.
func buildPipeline(cfg *config.Config) (*pipeline, error) {
	p := &pipeline{cfg: cfg, registry: producer.NewRegistry()}

	store, err := storage.Open(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	p.store = store
	logging.Info().Str("backend", store.Backend()).Str("path", cfg.Storage.Path).Msg("Storage opened")

	reg, err := classifier.NewRegistryFromConfig(cfg.Classifier)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build classifier: %w", err)
	}

	p.window = window.New(window.Config{
		Capacity:      cfg.Window.Capacity,
		MaxAge:        cfg.Window.MaxAge,
		SweepInterval: cfg.Window.SweepInterval,
	})
	p.hub = websocket.NewHub(cfg.Hub)
	p.engine = detection.NewEngineFromConfig(cfg.Correlation, p.window, store, p.hub)

	busCfg := cfg.Bus
	if busCfg.Backend == "nats" && busCfg.EmbeddedServer {
		p.broker = eventbus.NewEmbeddedServer("127.0.0.1", busCfg.EmbeddedPort, busCfg.StoreDir)
		busCfg.NATSURL = fmt.Sprintf("nats://127.0.0.1:%d", busCfg.EmbeddedPort)
	}
	p.bus, err = eventbus.New(busCfg)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build event bus: %w", err)
	}

	p.gateway = ingest.NewGateway(store, p.window, reg)
	p.gateway.SetHub(p.hub)
	p.gateway.SetPublisher(p.bus)

	p.bus.AddStage(stageCorrelate, func(ctx context.Context, e *models.Event) error {
		_, err := p.engine.Process(ctx, e)
		return err
	})

	if cfg.Escalation.Enabled {
		p.coordinator = escalation.NewCoordinator(cfg.Escalation, p.gateway)
		p.bus.AddStage(stageEscalate, func(ctx context.Context, e *models.Event) error {
			if escalation.ShouldEscalate(e) {
				p.coordinator.Escalate(ctx, e)
			}
			return nil
		})
	}

	if cfg.Enrich.Enabled {
		client := enrich.NewClient(cfg.Enrich.URL, cfg.Enrich.Model, cfg.Enrich.Timeout)
		p.enricher = enrich.NewEnricher(cfg.Enrich, client, p.hub)
		p.bus.AddStage(stageEnrich, p.enricher.Enqueue)
	}

	for _, ep := range cfg.Producers.Endpoints {
		p.addHTTPProducer(ep)
	}

	handler := api.NewHandler(api.Deps{
		Gateway:   p.gateway,
		Store:     store,
		Hub:       p.hub,
		Window:    p.window,
		Producers: p.registry,
		Engine:    p.engine,
	}, cfg.Server.CORSOrigins)

	p.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           api.NewRouter(handler, api.NewMiddleware(api.MiddlewareConfigFrom(cfg.Server))),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}
	return p, nil
}

// addHTTPProducer attaches one remote producer. A disabled endpoint is
// tracked so it shows in status, but never scanned.
func (p *pipeline) addHTTPProducer(ep config.ProducerEndpoint) {
	tracker := p.registry.Tracker(ep.ID)
	if ep.Disabled {
		tracker.Disable()
		logging.Info().Str("producer_id", ep.ID).Msg("Producer disabled by configuration")
		return
	}

	prod := producer.NewHTTPProducer(ep.ID, ep.URL, p.cfg.Producers.ScanInterval(ep), p.cfg.Producers.RequestTimeout)
	if p.coordinator != nil {
		p.coordinator.Attach(prod)
	}
	p.producers = append(p.producers, producer.NewService(prod, p.gateway, tracker, producer.ServiceConfig{
		Subjects:      p.cfg.Producers.Subjects,
		SubmitRetries: p.cfg.Producers.SubmitRetries,
		RetryBackoff:  p.cfg.Producers.RetryBackoff,
	}))
	logging.Info().
		Str("producer_id", ep.ID).
		Str("url", ep.URL).
		Dur("scan_interval", p.cfg.Producers.ScanInterval(ep)).
		Msg("Producer attached")
}

// supervise adds every service to the tree.
func (p *pipeline) supervise(tree *supervisor.SupervisorTree) {
	tree.AddDataService(services.NewWindowSweeperService(p.window))
	if gc, ok := p.store.(services.ContextRunner); ok {
		tree.AddDataService(services.NewStorageGCService(gc))
	}

	if p.broker != nil {
		tree.AddMessagingService(services.NewBrokerService(p.broker, p.cfg.Bus.CloseTimeout, 0))
	}
	tree.AddMessagingService(services.NewEventBusService(p.bus))
	tree.AddMessagingService(services.NewHubService(p.hub))
	if p.enricher != nil {
		tree.AddMessagingService(services.NewEnrichmentService(p.enricher))
	}

	for _, svc := range p.producers {
		tree.AddProducerService(services.NewProducerService(svc))
	}

	tree.AddAPIService(services.NewHTTPServerService(p.server, p.cfg.Server.ShutdownTimeout))
}

// close releases resources that outlive the supervisor tree.
func (p *pipeline) close() {
	if err := p.store.Close(); err != nil {
		logging.Error().Err(err).Msg("Error closing storage")
	}
}
