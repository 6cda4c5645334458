package store

import "testing"

func TestNormalizeRequestGroup(t *testing.T) {
	empty := ""
	blue := "support-thread-1"

	tests := []struct {
		name string
		in   *string
		want string
	}{
		{"nil", nil, UngroupedRequestGroup},
		{"empty string", &empty, UngroupedRequestGroup},
		{"set value", &blue, "support-thread-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeRequestGroup(tt.in); got != tt.want {
				t.Errorf("NormalizeRequestGroup(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
