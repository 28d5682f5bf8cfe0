package security

import (
	"net/http/httptest"
	"testing"
)

func TestCheckOriginLocalhostOnly(t *testing.T) {
	oc := NewOriginChecker(nil, true)

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true}, // same-origin request
		{"http://localhost:5173", true},
		{"http://127.0.0.1:8930", true},
		{"http://app.localhost", true},
		{"https://evil.example.com", false},
	}
	for _, tt := range tests {
		if got := oc.CheckOriginValue(tt.origin); got != tt.want {
			t.Errorf("CheckOriginValue(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestCheckOriginAllowedList(t *testing.T) {
	oc := NewOriginChecker([]string{"https://app.example.com", "*.trusted.dev"}, false)

	tests := []struct {
		origin string
		want   bool
	}{
		{"https://app.example.com", true},
		{"https://sub.trusted.dev", true},
		{"https://trusted.dev", true},
		{"https://untrusted.dev", false},
		{"https://other.example.com", false},
	}
	for _, tt := range tests {
		if got := oc.CheckOriginValue(tt.origin); got != tt.want {
			t.Errorf("CheckOriginValue(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestCheckOriginOpenWhenUnconfigured(t *testing.T) {
	oc := NewOriginChecker(nil, false)
	if !oc.CheckOriginValue("https://anywhere.example.com") {
		t.Error("unconfigured checker rejected an origin")
	}
}

func TestCheckOriginReadsRequestHeader(t *testing.T) {
	oc := NewOriginChecker(nil, true)

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Origin", "http://localhost:3000")
	if !oc.CheckOrigin(r) {
		t.Error("localhost request origin rejected")
	}

	r.Header.Set("Origin", "https://evil.example.com")
	if oc.CheckOrigin(r) {
		t.Error("non-localhost request origin accepted")
	}
}
