// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package escalation

import (
	"errors"
	"fmt"
	"time"
)

// ErrCircuitOpen is wrapped by ProducerError when the producer's breaker
// rejected the call without invoking it.
var ErrCircuitOpen = errors.New("circuit open")

// ErrRateLimited is wrapped by ProducerError for every target when the
// subject's escalation rate limit suppressed the fan-out.
var ErrRateLimited = errors.New("subject escalation rate limited")

// ProducerTimeoutError reports a deep investigation that exceeded its timeout.
type ProducerTimeoutError struct {
	ProducerID string
	After      time.Duration
}

func (e *ProducerTimeoutError) Error() string {
	return fmt.Sprintf("producer %s: deep investigation timed out after %s", e.ProducerID, e.After)
}

// Timeout satisfies the net.Error style timeout check.
func (e *ProducerTimeoutError) Timeout() bool { return true }

// ProducerError reports a deep investigation that failed.
type ProducerError struct {
	ProducerID string
	Err        error
}

func (e *ProducerError) Error() string {
	return fmt.Sprintf("producer %s: deep investigation failed: %v", e.ProducerID, e.Err)
}

func (e *ProducerError) Unwrap() error {
	return e.Err
}
