package util

import (
	"testing"
)

func TestFindFirst(t *testing.T) {
	byName := func(name string) func(string) bool {
		return func(s string) bool { return s == name }
	}

	tests := []struct {
		name      string
		slice     []string
		predicate func(string) bool
		expected  string
		found     bool
	}{
		{
			name:      "option present",
			slice:     []string{"text", "voice", "speed"},
			predicate: byName("voice"),
			expected:  "voice",
			found:     true,
		},
		{
			name:      "option missing",
			slice:     []string{"text", "speed"},
			predicate: byName("voice"),
			found:     false,
		},
		{
			name:      "no options",
			slice:     nil,
			predicate: byName("voice"),
			found:     false,
		},
		{
			name:      "first match wins",
			slice:     []string{"to", "from", "to"},
			predicate: func(s string) bool { return len(s) == 2 },
			expected:  "to",
			found:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, found := FindFirst(tt.slice, tt.predicate)
			if result != tt.expected || found != tt.found {
				t.Errorf("FindFirst() = (%q, %v), want (%q, %v)", result, found, tt.expected, tt.found)
			}
		})
	}
}
