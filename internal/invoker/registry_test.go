package invoker

import (
	"context"
	"testing"
	"time"

	"github.com/oriys/whisk/internal/broker"
)

// fakeBroker implements broker.Broker with only RecentHeartbeats wired,
// enough to exercise the registry's consumer loop.
type fakeBroker struct {
	heartbeats []broker.HeartbeatMessage
}

func (f *fakeBroker) PublishInvocation(context.Context, broker.InvocationMessage) (string, error) {
	return "", nil
}
func (f *fakeBroker) PublishActivationResult(context.Context, broker.ActivationResultMessage) (string, error) {
	return "", nil
}
func (f *fakeBroker) PublishHeartbeat(context.Context, broker.HeartbeatMessage) (string, error) {
	return "", nil
}
func (f *fakeBroker) ReadBlocking(context.Context, string, time.Duration) (*broker.ActivationResultMessage, error) {
	return nil, broker.ErrNoMessage
}
func (f *fakeBroker) ReadRecent(context.Context, string, int) (*broker.ActivationResultMessage, error) {
	return nil, broker.ErrNoMessage
}
func (f *fakeBroker) RecentHeartbeats(context.Context, int) ([]broker.HeartbeatMessage, error) {
	return f.heartbeats, nil
}
func (f *fakeBroker) ConsumeInvocations(context.Context, string, int, time.Duration) ([]broker.InvocationMessage, error) {
	return nil, nil
}
func (f *fakeBroker) EnsureConsumerGroup(context.Context, string, string) error { return nil }
func (f *fakeBroker) Ping(context.Context) error                               { return nil }
func (f *fakeBroker) Close() error                                            { return nil }

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry(&fakeBroker{})
	inv := &Invoker{ID: "i1", State: StateActive, LastHeartbeat: time.Now()}
	r.Register(inv)

	got, err := r.GetInvoker("i1")
	if err != nil {
		t.Fatalf("GetInvoker() error = %v", err)
	}
	if got.ID != "i1" {
		t.Errorf("GetInvoker() = %+v, want id i1", got)
	}

	if _, err := r.GetInvoker("missing"); err == nil {
		t.Error("expected error for unknown invoker")
	}
}

func TestRegistryListHealthyFiltersStale(t *testing.T) {
	r := NewRegistry(&fakeBroker{})
	r.Register(&Invoker{ID: "fresh", State: StateActive, LastHeartbeat: time.Now()})
	r.Register(&Invoker{ID: "stale", State: StateActive, LastHeartbeat: time.Now().Add(-2 * HeartbeatTimeout)})
	r.Register(&Invoker{ID: "inactive", State: StateInactive, LastHeartbeat: time.Now()})

	healthy := r.ListHealthyInvokers()
	if len(healthy) != 1 || healthy[0].ID != "fresh" {
		t.Errorf("ListHealthyInvokers() = %v, want only [fresh]", healthy)
	}

	all := r.ListInvokers()
	if len(all) != 3 {
		t.Errorf("ListInvokers() len = %d, want 3", len(all))
	}
}

func TestRegistryRefreshIngestsHeartbeats(t *testing.T) {
	fb := &fakeBroker{heartbeats: []broker.HeartbeatMessage{
		{
			InvokerID:         "new-invoker",
			TimestampUnixMS:   time.Now().UnixMilli(),
			CapacityMB:        2048,
			Status:            "active",
			SupportedRuntimes: []string{"nodejs:20", "python:3.11"},
			WarmRuntimes:      []string{"nodejs:20"},
		},
	}}
	r := NewRegistry(fb)

	if err := r.refresh(context.Background()); err != nil {
		t.Fatalf("refresh() error = %v", err)
	}

	inv, err := r.GetInvoker("new-invoker")
	if err != nil {
		t.Fatalf("GetInvoker() error = %v", err)
	}
	if inv.CapacityMB != 2048 {
		t.Errorf("CapacityMB = %d, want 2048", inv.CapacityMB)
	}
	if inv.State != StateActive {
		t.Errorf("State = %s, want active", inv.State)
	}
	if !inv.SupportsRuntime("nodejs:20") || !inv.SupportsRuntime("python:3.11") {
		t.Errorf("SupportedRuntimes = %v, want nodejs:20 and python:3.11", inv.SupportedRuntimes)
	}
	if !inv.IsWarmFor("nodejs:20") {
		t.Error("IsWarmFor(nodejs:20) = false, want true")
	}
	if inv.IsWarmFor("python:3.11") {
		t.Error("IsWarmFor(python:3.11) = true, want false (cold, supported only)")
	}
}

func TestRegistryStartStopIdempotent(t *testing.T) {
	r := NewRegistry(&fakeBroker{})
	r.pollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r.Start(ctx)
	r.Start(ctx) // no-op, must not deadlock or spawn a second goroutine

	time.Sleep(30 * time.Millisecond)

	r.Stop()
	r.Stop() // no-op
}
