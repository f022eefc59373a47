// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package ingest

import (
	"errors"
	"fmt"
)

// Kind classifies an ingestion failure.
type Kind string

const (
	// KindValidation covers missing or malformed fields and unclassifiable events.
	KindValidation Kind = "validation"

	// KindInvalidConfidence means confidence fell outside [0,1]. It is never clamped.
	KindInvalidConfidence Kind = "invalid_confidence"

	// KindStorage means the persistence write failed. The caller should retry.
	KindStorage Kind = "storage"
)

// ErrNoClassification is wrapped when severity or confidence is missing and
// no policy can supply it.
var ErrNoClassification = errors.New("severity and confidence not reported and no policy applies")

// IngestError is returned by Gateway.Submit.
type IngestError struct {
	Kind       Kind
	ProducerID string
	Field      string
	Err        error
}

func (e *IngestError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("ingest %s (%s): %s: %v", e.Kind, e.ProducerID, e.Field, e.Err)
	}
	return fmt.Sprintf("ingest %s (%s): %v", e.Kind, e.ProducerID, e.Err)
}

func (e *IngestError) Unwrap() error {
	return e.Err
}

// Retryable reports whether resubmitting the same event may succeed.
func (e *IngestError) Retryable() bool {
	return e.Kind == KindStorage
}

// IsRetryable reports whether err is an IngestError worth retrying.
func IsRetryable(err error) bool {
	var ie *IngestError
	return errors.As(err, &ie) && ie.Retryable()
}
