// Package listener keeps at most one live change subscription per activation
// code and turns its events into callbacks.
package listener

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	cn "github.com/LerianStudio/lib-activation-go/constant"
	"github.com/LerianStudio/lib-activation-go/internal/telemetry"
	"github.com/LerianStudio/lib-activation-go/model"
	"github.com/LerianStudio/lib-activation-go/store"
	"github.com/LerianStudio/lib-commons/commons/log"
)

// ErrDeleted is passed to a ChangeFunc when the record no longer exists.
var ErrDeleted = errors.New(cn.ReasonDeleted)

// ChangeFunc receives either a normalized record or an error: ErrDeleted
// for a tombstone, or the stream failure.
type ChangeFunc func(record *model.ActivationCode, err error)

// Manager owns the subscriptions. Callbacks run on a goroutine owned by the
// manager and never overlap for the same code.
type Manager struct {
	store   store.RecordStore
	logger  log.Logger
	metrics *telemetry.Metrics

	mu     sync.Mutex
	active map[string]*listener
	gates  map[string]*gate
}

// gate serializes callbacks for one code across successive listeners. It is
// dropped once no run loop for the code holds it.
type gate struct {
	sync.Mutex
	refs int
}

type listener struct {
	sub       store.Subscription
	cancelled atomic.Bool
}

// New creates a listener manager over rs. rs may be nil, in which case
// Listen reports constant.ErrNotInitialized.
func New(rs store.RecordStore, metrics *telemetry.Metrics, logger log.Logger) *Manager {
	return &Manager{
		store:   rs,
		logger:  logger,
		metrics: metrics,
		active:  make(map[string]*listener),
		gates:   make(map[string]*gate),
	}
}

// Listen stops any prior subscription for codeID and starts a new one.
func (m *Manager) Listen(ctx context.Context, codeID string, onChange ChangeFunc) error {
	if m.store == nil {
		return cn.ErrNotInitialized
	}

	m.Stop(codeID)

	// Only Stop ends a listener, not the caller's context.
	subCtx := context.WithoutCancel(ctx)

	sub, err := m.store.Subscribe(subCtx, codeID)
	if err != nil {
		m.logger.Errorf("Failed to subscribe to code %s: %v", codeID, err)
		return err
	}

	l := &listener{sub: sub}

	m.mu.Lock()
	prev := m.active[codeID]
	m.active[codeID] = l
	g := m.acquireGateLocked(codeID)
	m.mu.Unlock()

	// A concurrent Listen for the same code may have registered in between.
	if prev != nil {
		stopListener(prev)
	}

	go m.run(subCtx, codeID, l, g, onChange)

	m.logger.Infof("Listening for changes on code %s", codeID)

	return nil
}

// Stop cancels and forgets the subscription for codeID. It is idempotent and
// safe to call from inside a ChangeFunc. At most one callback already in
// progress may still complete after Stop returns.
func (m *Manager) Stop(codeID string) {
	m.mu.Lock()
	l := m.active[codeID]
	delete(m.active, codeID)
	m.mu.Unlock()

	if l == nil {
		return
	}

	stopListener(l)
	m.logger.Infof("Stopped listening on code %s", codeID)
}

// StopAll stops every subscription.
func (m *Manager) StopAll() {
	m.mu.Lock()
	codes := make([]string, 0, len(m.active))

	for code := range m.active {
		codes = append(codes, code)
	}
	m.mu.Unlock()

	for _, code := range codes {
		m.Stop(code)
	}
}

// Active reports whether a subscription for codeID is live.
func (m *Manager) Active(codeID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.active[codeID]

	return ok
}

func stopListener(l *listener) {
	l.cancelled.Store(true)
	l.sub.Unsubscribe()
}

func (m *Manager) acquireGateLocked(codeID string) *gate {
	g, ok := m.gates[codeID]
	if !ok {
		g = &gate{}
		m.gates[codeID] = g
	}

	g.refs++

	return g
}

func (m *Manager) releaseGateLocked(codeID string, g *gate) {
	g.refs--
	if g.refs == 0 && m.gates[codeID] == g {
		delete(m.gates, codeID)
	}
}

func (m *Manager) run(ctx context.Context, codeID string, l *listener, g *gate, onChange ChangeFunc) {
	defer func() {
		m.mu.Lock()
		// The stream may have ended on its own; forget it unless it was replaced.
		if m.active[codeID] == l {
			delete(m.active, codeID)
		}

		m.releaseGateLocked(codeID, g)
		m.mu.Unlock()
	}()

	for ev := range l.sub.Events() {
		if !m.deliver(ctx, codeID, l, g, ev, onChange) {
			return
		}
	}
}

// gateCount reports how many codes currently hold a delivery gate.
func (m *Manager) gateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.gates)
}

func (m *Manager) deliver(ctx context.Context, codeID string, l *listener, g *gate, ev store.Event, onChange ChangeFunc) bool {
	g.Lock()
	defer g.Unlock()

	if l.cancelled.Load() {
		l.sub.Unsubscribe()
		return false
	}

	switch {
	case ev.Err != nil:
		m.logger.Warnf("Change stream error on code %s: %v", codeID, ev.Err)
		m.metrics.RecordDelivery(ctx, "error")
		onChange(nil, ev.Err)
	case ev.Deleted || ev.Record == nil:
		m.logger.Warnf("Code %s was deleted", codeID)
		m.metrics.RecordDelivery(ctx, "deleted")
		onChange(nil, ErrDeleted)
	default:
		m.metrics.RecordDelivery(ctx, "record")
		onChange(ev.Record.Normalize(), nil)
	}

	return true
}
