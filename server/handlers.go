package server

import (
	"github.com/onnwee/pomodorotteux/presence"
)

// StatusSource is the running session as seen by the HTTP handlers.
type StatusSource interface {
	ID() string
	Channel() string
	Alive() bool
	Snapshot() presence.Snapshot
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	src StatusSource
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(src StatusSource) *Handlers {
	return &Handlers{src: src}
}
