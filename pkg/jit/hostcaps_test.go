package jit

import "testing"

func TestDetectHostCaps(t *testing.T) {
	caps := DetectHostCaps()
	if caps.CacheLine < 0 {
		t.Errorf("expected non-negative cache line size, got %d", caps.CacheLine)
	}
}

func TestUnit_RecordsHostCaps(t *testing.T) {
	u, err := New(incFrontend{}, 16, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if u.HostCaps.CacheLine < 0 {
		t.Errorf("expected Unit to record a non-negative cache line size")
	}
}
