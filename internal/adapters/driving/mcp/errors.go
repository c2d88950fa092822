// Package mcp provides the Model Context Protocol server adapter,
// exposing the tool façade over stdio and streamable HTTP with
// identical tool names and schemas on both transports.
package mcp

import (
	"errors"
	"fmt"

	"github.com/mussolene/1c-hbk-helper/internal/core/domain"
	"github.com/mussolene/1c-hbk-helper/internal/logger"
)

// ErrMissingFacade is returned when the tool façade is not provided.
var ErrMissingFacade = errors.New("mcp: tool facade is required")

// errorKind maps a façade error to its stable, transport-facing kind.
func errorKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrSyncInProgress):
		return "conflict"
	case errors.Is(err, domain.ErrDegraded):
		return "degraded"
	case errors.Is(err, domain.ErrDimensionMismatch):
		return "dimension_mismatch"
	case errors.Is(err, domain.ErrConfiguration):
		return "configuration"
	default:
		return "internal"
	}
}

// toolError converts a façade error into the transport response shape.
// In production mode the response carries only the stable kind; the full
// error text is logged, never returned.
func toolError(op string, err error) error {
	kind := errorKind(err)
	if logger.IsProduction() {
		logger.Warn("%s failed: %v", op, err)
		return fmt.Errorf("%s", kind)
	}
	return fmt.Errorf("%s: %w", kind, err)
}
