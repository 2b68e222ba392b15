package domain

import "testing"

func TestCodeHashChanged(t *testing.T) {
	a := Action{Exec: Exec{Kind: ExecKindCode, CodeHash: HashCode([]byte("v1"))}}

	if a.CodeHashChanged([]byte("v1")) {
		t.Fatalf("CodeHashChanged(v1) = true, want false for unchanged code")
	}
	if !a.CodeHashChanged([]byte("v2")) {
		t.Fatalf("CodeHashChanged(v2) = false, want true for changed code")
	}
}

func TestIsSequence(t *testing.T) {
	tests := []struct {
		kind ExecKind
		want bool
	}{
		{ExecKindCode, false},
		{ExecKindSequence, true},
	}

	for _, tt := range tests {
		a := Action{Exec: Exec{Kind: tt.kind}}
		if got := a.IsSequence(); got != tt.want {
			t.Fatalf("IsSequence() with kind %q = %v, want %v", tt.kind, got, tt.want)
		}
	}
}
