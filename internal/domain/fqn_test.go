package domain

import "testing"

func TestParseFQNRoundTrip(t *testing.T) {
	tests := []struct {
		raw  string
		want FQN
	}{
		{"/guest/hello", FQN{Namespace: "guest", Name: "hello"}},
		{"/guest/utils/hello", FQN{Namespace: "guest", Package: "utils", Name: "hello"}},
		{"guest/hello", FQN{Namespace: "guest", Name: "hello"}},
	}

	for _, tt := range tests {
		got, err := ParseFQN(tt.raw)
		if err != nil {
			t.Fatalf("ParseFQN(%q) returned error: %v", tt.raw, err)
		}
		if got != tt.want {
			t.Fatalf("ParseFQN(%q) = %+v, want %+v", tt.raw, got, tt.want)
		}
		if got.String() != BuildFQN(tt.want.Namespace, tt.want.Package, tt.want.Name) {
			t.Fatalf("round trip mismatch for %q: %s", tt.raw, got.String())
		}
	}
}

func TestParseFQNInvalid(t *testing.T) {
	for _, raw := range []string{"", "guest", "a/b/c/d"} {
		if _, err := ParseFQN(raw); err == nil {
			t.Fatalf("ParseFQN(%q) expected error, got nil", raw)
		}
	}
}

func TestParseActionPath(t *testing.T) {
	tests := []struct {
		path    string
		wantPkg string
		wantName string
	}{
		{"hello", "", "hello"},
		{"utils/hello", "utils", "hello"},
	}

	for _, tt := range tests {
		pkg, name, err := ParseActionPath(tt.path)
		if err != nil {
			t.Fatalf("ParseActionPath(%q) returned error: %v", tt.path, err)
		}
		if pkg != tt.wantPkg || name != tt.wantName {
			t.Fatalf("ParseActionPath(%q) = (%q, %q), want (%q, %q)", tt.path, pkg, name, tt.wantPkg, tt.wantName)
		}
	}
}
