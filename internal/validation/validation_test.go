package validation

import (
	"testing"

	"github.com/oriys/whisk/internal/domain"
)

func TestEntityName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"", true},
		{"hello", false},
		{"hello-world_2.0@x", false},
		{"hello world", true},
	}

	for _, tt := range tests {
		err := EntityName(tt.name, "name")
		if (err != nil) != tt.wantErr {
			t.Fatalf("EntityName(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestLimitsBoundaries(t *testing.T) {
	tests := []struct {
		limits  domain.Limits
		wantErr bool
	}{
		{domain.Limits{TimeoutMS: MinTimeoutMS, MemoryMB: MinMemoryMB, LogsMB: MinLogsMB}, false},
		{domain.Limits{TimeoutMS: MaxTimeoutMS, MemoryMB: MaxMemoryMB, LogsMB: MaxLogsMB}, false},
		{domain.Limits{TimeoutMS: MinTimeoutMS - 1, MemoryMB: MinMemoryMB, LogsMB: MinLogsMB}, true},
		{domain.Limits{TimeoutMS: MaxTimeoutMS + 1, MemoryMB: MinMemoryMB, LogsMB: MinLogsMB}, true},
		{domain.Limits{TimeoutMS: MinTimeoutMS, MemoryMB: MaxMemoryMB + 1, LogsMB: MinLogsMB}, true},
	}

	for _, tt := range tests {
		err := Limits(tt.limits)
		if (err != nil) != tt.wantErr {
			t.Fatalf("Limits(%+v) error = %v, wantErr %v", tt.limits, err, tt.wantErr)
		}
	}
}

func TestActionSequenceRequiresComponents(t *testing.T) {
	a := domain.Action{
		Namespace: "guest",
		Name:      "seq",
		Exec:      domain.Exec{Kind: domain.ExecKindSequence},
		Limits:    domain.Limits{TimeoutMS: MinTimeoutMS, MemoryMB: MinMemoryMB, LogsMB: MinLogsMB},
	}
	if err := Action(a); err == nil {
		t.Fatalf("Action() with zero-component sequence expected error, got nil")
	}

	a.Exec.Components = []string{"/guest/step1"}
	if err := Action(a); err != nil {
		t.Fatalf("Action() with one component returned error: %v", err)
	}
}

func TestExecKindAllowlist(t *testing.T) {
	if err := ExecKind("python:3.11"); err != nil {
		t.Fatalf("ExecKind(python:3.11) returned error: %v", err)
	}
	if err := ExecKind("python:2.7"); err == nil {
		t.Fatalf("ExecKind(python:2.7) expected error, got nil")
	}
}

func TestClampTimeout(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, MinTimeoutMS},
		{MinTimeoutMS, MinTimeoutMS},
		{MaxTimeoutMS, MaxTimeoutMS},
		{MaxTimeoutMS + 1000, MaxTimeoutMS},
	}
	for _, tt := range tests {
		if got := ClampTimeout(tt.in); got != tt.want {
			t.Fatalf("ClampTimeout(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
