package invoker

import (
	"testing"
	"time"
)

func TestIsHealthy(t *testing.T) {
	cases := []struct {
		name    string
		state   State
		age     time.Duration
		timeout time.Duration
		want    bool
	}{
		{"fresh active", StateActive, time.Second, HeartbeatTimeout, true},
		{"stale active", StateActive, HeartbeatTimeout + time.Second, HeartbeatTimeout, false},
		{"inactive but fresh", StateInactive, time.Second, HeartbeatTimeout, false},
		{"exactly at boundary", StateActive, HeartbeatTimeout, HeartbeatTimeout, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inv := &Invoker{State: tc.state, LastHeartbeat: time.Now().Add(-tc.age)}
			if got := inv.IsHealthy(tc.timeout); got != tc.want {
				t.Errorf("IsHealthy() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAvailableMB(t *testing.T) {
	inv := &Invoker{CapacityMB: 1024, UsedMB: 900}
	if got := inv.AvailableMB(); got != 124 {
		t.Errorf("AvailableMB() = %d, want 124", got)
	}

	overcommitted := &Invoker{CapacityMB: 512, UsedMB: 600}
	if got := overcommitted.AvailableMB(); got != 0 {
		t.Errorf("AvailableMB() for overcommitted invoker = %d, want 0", got)
	}
}

func TestSupportsAndWarm(t *testing.T) {
	inv := &Invoker{
		SupportedRuntimes: map[string]bool{"python:3.11": true},
		WarmRuntimes:      map[string]bool{"python:3.11": true},
	}
	if !inv.SupportsRuntime("python:3.11") {
		t.Error("expected support for python:3.11")
	}
	if inv.SupportsRuntime("nodejs:20") {
		t.Error("did not expect support for nodejs:20")
	}
	if !inv.IsWarmFor("python:3.11") {
		t.Error("expected warm for python:3.11")
	}
	if inv.IsWarmFor("nodejs:20") {
		t.Error("did not expect warm for nodejs:20")
	}
}
