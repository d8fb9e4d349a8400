package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/LerianStudio/lib-commons/commons/log"
)

// Verifier re-checks the local activation against the record store
type Verifier interface {
	VerifyWithRetry(ctx context.Context) error
}

// Manager runs periodic re-verification in the background
type Manager struct {
	interval time.Duration
	verifier Verifier
	logger   log.Logger

	mu                 sync.Mutex
	started            bool
	cancel             context.CancelFunc
	done               chan struct{}
	lastAttempt        time.Time
	lastSuccess        time.Time
	consecutiveFailure int
}

// New creates a new background refresh manager
func New(verifier Verifier, interval time.Duration, logger log.Logger) *Manager {
	return &Manager{
		verifier: verifier,
		interval: interval,
		logger:   logger,
	}
}

// Start begins the background refresh process. Calling it again while
// running has no effect.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}

	refreshCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.started = true
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	ticker := time.NewTicker(m.interval)

	go func() {
		defer close(done)
		defer ticker.Stop()

		m.logger.Infof("Starting background activation refresh every %s", m.interval)

		for {
			select {
			case <-refreshCtx.Done():
				m.logger.Info("Background activation refresh stopped")
				return
			case <-ticker.C:
				m.attempt(refreshCtx)
			}
		}
	}()
}

// Shutdown stops the background refresh process and waits for it to exit
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}

	m.cancel()
	m.cancel = nil
	m.started = false
	done := m.done
	m.mu.Unlock()

	<-done
	m.logger.Info("Background activation refresh shutdown complete")
}

// Status reports the last attempt, the last success and the current failure streak
func (m *Manager) Status() (lastAttempt, lastSuccess time.Time, failures int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.lastAttempt, m.lastSuccess, m.consecutiveFailure
}

func (m *Manager) attempt(ctx context.Context) {
	m.mu.Lock()
	m.lastAttempt = time.Now()
	m.mu.Unlock()

	err := m.verifier.VerifyWithRetry(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.consecutiveFailure++
		m.logger.Errorf("Activation re-verification failed after retries: %v", err)

		return
	}

	m.consecutiveFailure = 0
	m.lastSuccess = time.Now()
	m.logger.Debug("Activation re-verification succeeded")
}
