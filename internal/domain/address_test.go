package domain

import "testing"

func TestValidAddress(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"x@example.com", true},
		{"a@b", true},
		{"", false},
		{"nodomain@", false},
		{"@nolocal.com", false},
		{"two@@example.com", false},
		{"a@b@c", false},
		{"plain", false},
	}
	for _, tt := range tests {
		if got := ValidAddress(tt.in); got != tt.want {
			t.Errorf("ValidAddress(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeAddress(t *testing.T) {
	if got := NormalizeAddress("  Bob@Example.COM "); got != "bob@example.com" {
		t.Errorf("NormalizeAddress = %q", got)
	}
}

func TestStatusTerminal(t *testing.T) {
	terminal := []MessageStatus{StatusDelivered, StatusBounced, StatusComplained, StatusFailed}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	open := []MessageStatus{StatusQueued, StatusProcessing, StatusSent, StatusSoftBounced}
	for _, s := range open {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	if MessageStatus("bogus").Valid() {
		t.Error("unknown status reported valid")
	}
}
