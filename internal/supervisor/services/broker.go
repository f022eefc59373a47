// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/hydra/internal/logging"
)

// Broker is the lifecycle of the embedded NATS server.
type Broker interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context)
	IsRunning() bool
}

// BrokerService keeps an embedded broker up for the lifetime of the
// messaging layer.
type BrokerService struct {
	broker          Broker
	shutdownTimeout time.Duration
	healthInterval  time.Duration
}

// NewBrokerService wraps broker. Health is polled every healthInterval; a
// dead broker fails the service so it is restarted.
func NewBrokerService(broker Broker, shutdownTimeout, healthInterval time.Duration) *BrokerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	if healthInterval <= 0 {
		healthInterval = 5 * time.Second
	}
	return &BrokerService{broker: broker, shutdownTimeout: shutdownTimeout, healthInterval: healthInterval}
}

// Serve implements suture.Service.
func (b *BrokerService) Serve(ctx context.Context) error {
	if err := b.broker.Start(ctx); err != nil {
		return fmt.Errorf("start embedded broker: %w", err)
	}

	ticker := time.NewTicker(b.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), b.shutdownTimeout)
			b.broker.Shutdown(shutdownCtx)
			cancel()
			return ctx.Err()
		case <-ticker.C:
			if !b.broker.IsRunning() {
				logging.Warn().Str("service", b.String()).Msg("Embedded broker stopped, restarting")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), b.shutdownTimeout)
				b.broker.Shutdown(shutdownCtx)
				cancel()
				return fmt.Errorf("embedded broker %w", ErrStoppedUnexpectedly)
			}
		}
	}
}

func (b *BrokerService) String() string {
	return "nats-embedded"
}
