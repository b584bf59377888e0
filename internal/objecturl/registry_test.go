package objecturl

import (
	"strings"
	"testing"

	"github.com/lehigh-university-libraries/imagepicker/internal/source"
)

func TestCreateResolveRevoke(t *testing.T) {
	reg := New("http://localhost:8888/")
	b := &source.Blob{Name: "a.png", ContentType: "image/png"}

	u := reg.Create(b)
	if !strings.HasPrefix(u, "blob:http://localhost:8888/") {
		t.Fatalf("Unexpected address %s", u)
	}
	if !IsObjectURL(u) {
		t.Errorf("Expected %s to be an object URL", u)
	}

	got, ok := reg.Resolve(u)
	if !ok || got != b {
		t.Fatalf("Expected to resolve blob, got %v %v", got, ok)
	}

	if !reg.Revoke(u) {
		t.Fatal("Expected first revoke to succeed")
	}
	if reg.Revoke(u) {
		t.Error("Expected second revoke to report a double release")
	}
	if _, ok := reg.Resolve(u); ok {
		t.Error("Expected revoked address to be unresolvable")
	}

	stats := reg.Stats()
	if stats.Live != 0 || stats.Created != 1 || stats.Revoked != 1 || stats.DoubleReleased != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestAddressesAreUnique(t *testing.T) {
	reg := New("http://localhost")
	b := &source.Blob{}
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		u := reg.Create(b)
		if seen[u] {
			t.Fatalf("Duplicate address %s", u)
		}
		seen[u] = true
	}
	if reg.Len() != 100 {
		t.Errorf("Expected 100 live addresses, got %d", reg.Len())
	}
}

func TestIsObjectURL(t *testing.T) {
	tests := []struct {
		u        string
		expected bool
	}{
		{"blob:http://x/1", true},
		{"BLOB:http://x/1", true},
		{"https://example.com", false},
		{"blo", false},
	}
	for _, tt := range tests {
		if got := IsObjectURL(tt.u); got != tt.expected {
			t.Errorf("IsObjectURL(%q): expected %v, got %v", tt.u, tt.expected, got)
		}
	}
}
