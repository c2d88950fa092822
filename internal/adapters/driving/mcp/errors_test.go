package mcp

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mussolene/1c-hbk-helper/internal/core/domain"
	"github.com/mussolene/1c-hbk-helper/internal/logger"
)

func TestErrorKindMapping(t *testing.T) {
	tests := []struct {
		err  error
		kind string
	}{
		{fmt.Errorf("wrap: %w", domain.ErrInvalidInput), "invalid_input"},
		{fmt.Errorf("wrap: %w", domain.ErrNotFound), "not_found"},
		{fmt.Errorf("wrap: %w", domain.ErrRateLimited), "rate_limited"},
		{domain.ErrSyncInProgress, "conflict"},
		{domain.ErrDegraded, "degraded"},
		{domain.ErrDimensionMismatch, "dimension_mismatch"},
		{domain.ErrConfiguration, "configuration"},
		{errors.New("anything else"), "internal"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.kind, errorKind(tc.err), "kind for %v", tc.err)
	}
}

func TestToolErrorHidesDetailInProduction(t *testing.T) {
	logger.SetProduction(true)
	defer logger.SetProduction(false)

	err := toolError("get_topic", fmt.Errorf("scanning /secret/path: %w", domain.ErrNotFound))
	assert.Equal(t, "not_found", err.Error(), "production responses carry only the stable kind")
}

func TestToolErrorKeepsDetailInDevelopment(t *testing.T) {
	logger.SetProduction(false)

	err := toolError("get_topic", fmt.Errorf("scanning x: %w", domain.ErrNotFound))
	assert.Contains(t, err.Error(), "not_found")
	assert.Contains(t, err.Error(), "scanning x")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
