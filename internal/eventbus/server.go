// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"

	"github.com/tomtom215/hydra/internal/logging"
)

// EmbeddedServer runs a NATS server inside the process for deployments
// without an external broker.
type EmbeddedServer struct {
	opts *server.Options

	mu     sync.Mutex
	server *server.Server
}

// NewEmbeddedServer prepares a server listening on host:port. JetStream is
// enabled when storeDir is set.
func NewEmbeddedServer(host string, port int, storeDir string) *EmbeddedServer {
	return &EmbeddedServer{opts: &server.Options{
		ServerName: "hydra-bus",
		Host:       host,
		Port:       port,
		JetStream:  storeDir != "",
		StoreDir:   storeDir,
		NoSigs:     true,
		MaxPayload: 8 * 1024 * 1024,
	}}
}

// Start launches the server and waits until it accepts connections.
func (s *EmbeddedServer) Start(_ context.Context) error {
	ns, err := server.NewServer(s.opts)
	if err != nil {
		return fmt.Errorf("create NATS server: %w", err)
	}
	ns.ConfigureLogger()

	go ns.Start()

	if !ns.ReadyForConnections(30 * time.Second) {
		ns.Shutdown()
		return errors.New("NATS server not ready within timeout")
	}

	s.mu.Lock()
	s.server = ns
	s.mu.Unlock()

	logging.Info().Str("url", ns.ClientURL()).Bool("jetstream", s.opts.JetStream).Msg("embedded NATS server started")
	return nil
}

// Shutdown stops the server and waits for it to exit or ctx to expire.
func (s *EmbeddedServer) Shutdown(ctx context.Context) {
	s.mu.Lock()
	ns := s.server
	s.server = nil
	s.mu.Unlock()
	if ns == nil {
		return
	}

	ns.Shutdown()
	done := make(chan struct{})
	go func() {
		ns.WaitForShutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logging.Warn().Msg("embedded NATS server shutdown timed out")
	}
}

// IsRunning reports whether the server is accepting connections.
func (s *EmbeddedServer) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.server != nil && s.server.Running()
}

// ClientURL returns the URL clients should dial, or "" before Start.
func (s *EmbeddedServer) ClientURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return ""
	}
	return s.server.ClientURL()
}
