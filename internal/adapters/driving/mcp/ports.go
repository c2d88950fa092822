package mcp

import (
	"github.com/mussolene/1c-hbk-helper/internal/core/ports/driving"
)

// Ports aggregates the driving port interfaces required by the MCP
// server. A single injection point keeps the transport layer free of
// wiring knowledge.
type Ports struct {
	// Facade provides every public tool operation.
	Facade driving.SearchFacade
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Facade == nil {
		return ErrMissingFacade
	}
	return nil
}
