package server

import "testing"

func TestResolveView(t *testing.T) {
	tests := []struct {
		param string
		want  View
	}{
		{"main", ViewMain},
		{"admin", ViewAdmin},
		{"chain", ViewChain},
		{"", ViewMain},
		{"unknown", ViewMain},
		{"ADMIN", ViewMain},
		{"main ", ViewMain},
	}
	for _, tt := range tests {
		if got := ResolveView(tt.param); got != tt.want {
			t.Errorf("ResolveView(%q) = %q, want %q", tt.param, got, tt.want)
		}
	}
}
