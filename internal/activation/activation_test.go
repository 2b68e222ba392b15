package activation

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/oriys/whisk/internal/broker"
	"github.com/oriys/whisk/internal/domain"
	"github.com/oriys/whisk/internal/werr"
)

// fakeStore is a minimal in-memory store.MetadataStore, enough to drive
// the Activation Manager's Open/Finalize/Await cycle without Postgres.
type fakeStore struct {
	mu          sync.Mutex
	activations map[string]*domain.Activation
}

func newFakeStore() *fakeStore {
	return &fakeStore{activations: make(map[string]*domain.Activation)}
}

func (f *fakeStore) SaveActivation(_ context.Context, a *domain.Activation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *a
	f.activations[a.Namespace+"/"+a.ActivationID] = &cp
	return nil
}

func (f *fakeStore) GetActivation(_ context.Context, namespace, id string) (*domain.Activation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.activations[namespace+"/"+id]
	if !ok {
		return nil, werr.NotFoundf("activation not found: %s", id)
	}
	cp := *a
	return &cp, nil
}

func (f *fakeStore) ListActivations(context.Context, string, int, string) ([]*domain.Activation, error) {
	return nil, nil
}

func (f *fakeStore) UpsertNamespace(context.Context, *domain.Namespace) error { return nil }
func (f *fakeStore) GetNamespace(context.Context, string) (*domain.Namespace, error) {
	return nil, werr.NotFoundf("not found")
}
func (f *fakeStore) ListNamespaces(context.Context, string) ([]*domain.Namespace, error) { return nil, nil }
func (f *fakeStore) DeleteNamespace(context.Context, string) error                       { return nil }

func (f *fakeStore) UpsertPackage(context.Context, *domain.Package) error { return nil }
func (f *fakeStore) GetPackage(context.Context, string, string) (*domain.Package, error) {
	return nil, werr.NotFoundf("not found")
}
func (f *fakeStore) ListPackages(context.Context, string) ([]*domain.Package, error) { return nil, nil }
func (f *fakeStore) DeletePackage(context.Context, string, string) error             { return nil }
func (f *fakeStore) ResolvePackageParameters(context.Context, string, string) ([]domain.KeyValue, error) {
	return nil, nil
}

func (f *fakeStore) UpsertAction(context.Context, *domain.Action) error { return nil }
func (f *fakeStore) GetAction(context.Context, string, string, string) (*domain.Action, error) {
	return nil, werr.NotFoundf("not found")
}
func (f *fakeStore) ListActions(context.Context, string, string) ([]*domain.Action, error) { return nil, nil }
func (f *fakeStore) DeleteAction(context.Context, string, string, string) error            { return nil }

func (f *fakeStore) UpsertTrigger(context.Context, *domain.Trigger) error { return nil }
func (f *fakeStore) GetTrigger(context.Context, string, string) (*domain.Trigger, error) {
	return nil, werr.NotFoundf("not found")
}
func (f *fakeStore) ListTriggers(context.Context, string) ([]*domain.Trigger, error) { return nil, nil }
func (f *fakeStore) DeleteTrigger(context.Context, string, string) error             { return nil }

func (f *fakeStore) UpsertRule(context.Context, *domain.Rule) error { return nil }
func (f *fakeStore) GetRule(context.Context, string, string) (*domain.Rule, error) {
	return nil, werr.NotFoundf("not found")
}
func (f *fakeStore) ListRules(context.Context, string) ([]*domain.Rule, error) { return nil, nil }
func (f *fakeStore) ListRulesForTrigger(context.Context, string, string) ([]*domain.Rule, error) {
	return nil, nil
}
func (f *fakeStore) DeleteRule(context.Context, string, string) error { return nil }

func (f *fakeStore) Ping(context.Context) error { return nil }
func (f *fakeStore) Close() error               { return nil }

// fakeBroker is a minimal broker.Broker that lets tests deliver a result
// for ReadBlocking on demand, or simulate a timeout by polling until the
// context is done or ReadBlocking's timeout argument elapses.
type fakeBroker struct {
	mu      sync.Mutex
	results map[string]*broker.ActivationResultMessage
	delay   time.Duration // not read; ReadBlocking waits for its timeout argument
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{results: make(map[string]*broker.ActivationResultMessage)}
}

func (b *fakeBroker) deliver(msg broker.ActivationResultMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.results[msg.ActivationID] = &msg
}

func (b *fakeBroker) ReadBlocking(ctx context.Context, activationID string, timeout time.Duration) (*broker.ActivationResultMessage, error) {
	deadline := time.Now().Add(timeout)
	for {
		b.mu.Lock()
		msg, ok := b.results[activationID]
		b.mu.Unlock()
		if ok {
			return msg, nil
		}
		if time.Now().After(deadline) {
			return nil, broker.ErrNoMessage
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (b *fakeBroker) PublishInvocation(context.Context, broker.InvocationMessage) (string, error) {
	return "1-0", nil
}
func (b *fakeBroker) PublishActivationResult(context.Context, broker.ActivationResultMessage) (string, error) {
	return "1-0", nil
}
func (b *fakeBroker) PublishHeartbeat(context.Context, broker.HeartbeatMessage) (string, error) {
	return "1-0", nil
}
func (b *fakeBroker) ReadRecent(context.Context, string, int) (*broker.ActivationResultMessage, error) {
	return nil, broker.ErrNoMessage
}
func (b *fakeBroker) RecentHeartbeats(context.Context, int) ([]broker.HeartbeatMessage, error) {
	return nil, nil
}
func (b *fakeBroker) ConsumeInvocations(context.Context, string, int, time.Duration) ([]broker.InvocationMessage, error) {
	return nil, nil
}
func (b *fakeBroker) EnsureConsumerGroup(context.Context, string, string) error { return nil }
func (b *fakeBroker) Ping(context.Context) error                                { return nil }
func (b *fakeBroker) Close() error                                              { return nil }

func TestOpenCreatesPendingRecord(t *testing.T) {
	mgr := NewManager(newFakeStore(), newFakeBroker())
	id, err := mgr.Open(context.Background(), OpenSpec{
		Namespace: "ns1", Name: "hello", Subject: "apikey:ns1", Kind: "code",
		Limits: domain.Limits{TimeoutMS: 60000, MemoryMB: 256, LogsMB: 1},
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if id == "" {
		t.Fatal("Open() returned empty activation id")
	}

	rec, err := mgr.store.GetActivation(context.Background(), "ns1", id)
	if err != nil {
		t.Fatalf("GetActivation() error = %v", err)
	}
	if !rec.IsPending() {
		t.Fatalf("expected pending record, got status %s", rec.Status)
	}
	if !rec.End.IsZero() {
		t.Fatal("expected zero End on pending record")
	}
}

func TestFinalizeIsIdempotent(t *testing.T) {
	st := newFakeStore()
	mgr := NewManager(st, newFakeBroker())
	id, _ := mgr.Open(context.Background(), OpenSpec{Namespace: "ns1", Name: "hello"})

	err := mgr.Finalize(context.Background(), "ns1", id, FinalizeFields{
		StatusCode: 200, Success: true, Result: map[string]interface{}{"v": 1},
	})
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	first, _ := st.GetActivation(context.Background(), "ns1", id)
	firstEnd := first.End

	time.Sleep(2 * time.Millisecond)
	if err := mgr.Finalize(context.Background(), "ns1", id, FinalizeFields{StatusCode: 500, Success: false}); err != nil {
		t.Fatalf("second Finalize() error = %v", err)
	}
	second, _ := st.GetActivation(context.Background(), "ns1", id)
	if !second.End.Equal(firstEnd) {
		t.Fatal("Finalize() was not idempotent: End changed on second call")
	}
	if second.Response.StatusCode != 200 {
		t.Fatalf("Finalize() clobbered first result, status_code = %d", second.Response.StatusCode)
	}
}

func TestFinalizeComputesDuration(t *testing.T) {
	st := newFakeStore()
	mgr := NewManager(st, newFakeBroker())
	id, _ := mgr.Open(context.Background(), OpenSpec{Namespace: "ns1", Name: "hello"})

	if err := mgr.Finalize(context.Background(), "ns1", id, FinalizeFields{StatusCode: 200, Success: true}); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	rec, _ := st.GetActivation(context.Background(), "ns1", id)
	if rec.Start.After(rec.End) {
		t.Fatalf("expected Start <= End, got Start=%v End=%v", rec.Start, rec.End)
	}
	wantMS := rec.End.Sub(rec.Start).Milliseconds()
	if rec.DurationMS < wantMS-5 || rec.DurationMS > wantMS+5 {
		t.Fatalf("DurationMS = %d, want approximately %d", rec.DurationMS, wantMS)
	}
}

func TestAwaitReturnsFinalizedRecordOnResult(t *testing.T) {
	st := newFakeStore()
	b := newFakeBroker()
	mgr := NewManager(st, b)
	id, _ := mgr.Open(context.Background(), OpenSpec{Namespace: "ns1", Name: "hello"})

	resp, _ := json.Marshal(map[string]interface{}{"success": true, "result": map[string]interface{}{"greet": "pat"}})
	b.deliver(broker.ActivationResultMessage{
		ActivationID: id, StatusCode: 200, Response: resp, DurationMS: 12,
	})

	rec, err := mgr.Await(context.Background(), "ns1", id, time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if !rec.Status.IsTerminal() || rec.Response.Result["greet"] != "pat" {
		t.Fatalf("Await() returned unexpected record: %+v", rec)
	}
}

func TestAwaitTimesOutWithoutFinalizing(t *testing.T) {
	st := newFakeStore()
	mgr := NewManager(st, newFakeBroker())
	id, _ := mgr.Open(context.Background(), OpenSpec{Namespace: "ns1", Name: "hello"})

	_, err := mgr.Await(context.Background(), "ns1", id, time.Now().Add(20*time.Millisecond))
	if werr.KindOf(err) != werr.KindTimeout {
		t.Fatalf("Await() error kind = %v, want timeout", werr.KindOf(err))
	}

	rec, _ := st.GetActivation(context.Background(), "ns1", id)
	if !rec.IsPending() {
		t.Fatal("Await() timeout should not finalize the record itself")
	}
}
