package invoker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oriys/whisk/internal/broker"
	"github.com/oriys/whisk/internal/logging"
	"github.com/oriys/whisk/internal/metrics"
)

// HeartbeatTimeout is the staleness window: an invoker whose last
// heartbeat is older than this is considered unhealthy (spec §4.4).
const HeartbeatTimeout = 30 * time.Second

// DefaultPollInterval is how often the registry's background consumer
// task drains the heartbeats stream.
const DefaultPollInterval = 5 * time.Second

// Registry tracks the fleet of invokers from the broker's heartbeats
// stream: a mutex-guarded in-memory map kept current by a background
// consumer goroutine with idempotent Start/Stop.
type Registry struct {
	broker broker.Broker

	mu       sync.RWMutex
	invokers map[string]*Invoker

	pollInterval     time.Duration
	heartbeatTimeout time.Duration

	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewRegistry builds a Registry that will poll b for heartbeats once
// Start is called.
func NewRegistry(b broker.Broker) *Registry {
	return &Registry{
		broker:           b,
		invokers:         make(map[string]*Invoker),
		pollInterval:     DefaultPollInterval,
		heartbeatTimeout: HeartbeatTimeout,
	}
}

// Start launches the background heartbeat-consumer goroutine. Calling
// Start while already running is a no-op.
func (r *Registry) Start(ctx context.Context) {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})

	go r.run(ctx)
}

// Stop signals the consumer goroutine to exit and waits up to 5s for it
// to join. Calling Stop when not running is a no-op.
func (r *Registry) Stop() {
	r.runMu.Lock()
	if !r.running {
		r.runMu.Unlock()
		return
	}
	close(r.stopCh)
	doneCh := r.doneCh
	r.running = false
	r.runMu.Unlock()

	select {
	case <-doneCh:
	case <-time.After(5 * time.Second):
		logging.Op().Warn("invoker registry consumer did not stop within 5s")
	}
}

func (r *Registry) run(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			if err := r.refresh(ctx); err != nil {
				logging.Op().Warn("invoker registry refresh failed", "err", err)
			}
			r.markStale()
		}
	}
}

func (r *Registry) refresh(ctx context.Context) error {
	heartbeats, err := r.broker.RecentHeartbeats(ctx, 200)
	if err != nil {
		return fmt.Errorf("refresh invoker registry: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, hb := range heartbeats {
		inv, exists := r.invokers[hb.InvokerID]
		if !exists {
			inv = &Invoker{
				ID:                hb.InvokerID,
				SupportedRuntimes: make(map[string]bool),
				WarmRuntimes:      make(map[string]bool),
				CreatedAt:         time.Now(),
			}
			r.invokers[hb.InvokerID] = inv
			metrics.Global().RecordInvokerJoined()
		}
		inv.State = StateActive
		inv.CapacityMB = hb.CapacityMB
		inv.LastHeartbeat = time.UnixMilli(hb.TimestampUnixMS)
		inv.UpdatedAt = time.Now()

		supported := make(map[string]bool, len(hb.SupportedRuntimes))
		for _, rt := range hb.SupportedRuntimes {
			supported[rt] = true
		}
		inv.SupportedRuntimes = supported

		warm := make(map[string]bool, len(hb.WarmRuntimes))
		for _, rt := range hb.WarmRuntimes {
			warm[rt] = true
		}
		inv.WarmRuntimes = warm
	}
	return nil
}

func (r *Registry) markStale() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, inv := range r.invokers {
		if inv.State == StateActive && !inv.IsHealthy(r.heartbeatTimeout) {
			logging.Op().Warn("invoker became unhealthy", "id", id, "last_heartbeat", inv.LastHeartbeat)
			inv.State = StateInactive
			metrics.Global().RecordInvokerUnhealthy()
		}
	}
}

// Register installs or replaces an invoker record directly, independent
// of heartbeats; the tests use it to seed the registry.
func (r *Registry) Register(inv *Invoker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv.UpdatedAt = time.Now()
	r.invokers[inv.ID] = inv
}

func (r *Registry) GetInvoker(id string) (*Invoker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inv, ok := r.invokers[id]
	if !ok {
		return nil, fmt.Errorf("invoker %s not found", id)
	}
	return inv, nil
}

// ListInvokers returns a snapshot of every tracked invoker, taken under
// the lock but safe to range over afterward.
func (r *Registry) ListInvokers() []*Invoker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Invoker, 0, len(r.invokers))
	for _, inv := range r.invokers {
		out = append(out, inv)
	}
	return out
}

// ListHealthyInvokers returns the snapshot filtered to invokers whose
// heartbeat is fresh within HeartbeatTimeout.
func (r *Registry) ListHealthyInvokers() []*Invoker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Invoker, 0, len(r.invokers))
	for _, inv := range r.invokers {
		if inv.IsHealthy(r.heartbeatTimeout) {
			out = append(out, inv)
		}
	}
	return out
}
