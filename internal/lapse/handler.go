// Package lapse dispatches notifications when an activation stops being valid.
// It never terminates the process.
package lapse

import (
	"sync"

	"github.com/LerianStudio/lib-activation-go/model"
	"github.com/LerianStudio/lib-commons/commons/log"
)

// Handler is invoked once per lapse with the code and its effective status.
type Handler func(code string, eval model.Evaluation)

// Manager holds the handler configured by the host application
type Manager struct {
	handler Handler
	logger  log.Logger
	mu      sync.RWMutex
}

// New creates a lapse manager that only logs until a handler is set
func New(logger log.Logger) *Manager {
	return &Manager{logger: logger}
}

// SetHandler updates the lapse handler
func (m *Manager) SetHandler(handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handler = handler
}

// Notify logs the lapse and invokes the handler, if any. A panicking
// handler is recovered and logged.
func (m *Manager) Notify(code string, eval model.Evaluation) {
	m.mu.RLock()
	handler := m.handler
	m.mu.RUnlock()

	m.logger.Warnf("Activation for code %s lapsed [status: %s | reason: %s]", code, eval.Status, eval.Reason)

	if handler == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			m.logger.Errorf("Lapse handler for code %s panicked: %v", code, r)
		}
	}()

	handler(code, eval)
}
