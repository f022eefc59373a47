// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/hydra/internal/ingest"
	"github.com/tomtom215/hydra/internal/storage"
	"github.com/tomtom215/hydra/internal/validation"
)

// Error codes returned in APIError.Code.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeInvalidConfidence = "INVALID_CONFIDENCE"
	CodeInvalidParameter  = "INVALID_PARAMETER"
	CodeInvalidBody       = "INVALID_BODY"
	CodeNotFound          = "NOT_FOUND"
	CodeStorage           = "STORAGE_ERROR"
	CodeInternal          = "INTERNAL_ERROR"
	CodeUnavailable       = "SERVICE_UNAVAILABLE"
)

// classifyError maps a domain error to status, code and details.
func classifyError(err error) (int, string, map[string]interface{}) {
	var ie *ingest.IngestError
	if errors.As(err, &ie) {
		var details map[string]interface{}
		var ve *validation.RequestValidationError
		if errors.As(ie.Err, &ve) {
			details = ve.Details()
		} else if ie.Field != "" {
			details = map[string]interface{}{ie.Field: ie.Err.Error()}
		}
		switch ie.Kind {
		case ingest.KindInvalidConfidence:
			return http.StatusBadRequest, CodeInvalidConfidence, details
		case ingest.KindValidation:
			return http.StatusBadRequest, CodeValidation, details
		default:
			return http.StatusServiceUnavailable, CodeStorage, nil
		}
	}
	if errors.Is(err, storage.ErrNotFound) {
		return http.StatusNotFound, CodeNotFound, nil
	}
	var se *storage.StorageError
	if errors.As(err, &se) || errors.Is(err, storage.ErrClosed) {
		return http.StatusServiceUnavailable, CodeStorage, nil
	}
	return http.StatusInternalServerError, CodeInternal, nil
}
