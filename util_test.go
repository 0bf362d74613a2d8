package swarm

import "testing"

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short string unchanged", "hello", 10, "hello"},
		{"exact length unchanged", "hello", 5, "hello"},
		{"long string shortened", "hello world", 8, "hello..."},
		{"tiny max unchanged", "abcd", 3, "abcd"},
		{"empty string", "", 4, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.max)
			AssertEqual(t, tt.want, got, "truncate")
			if tt.want != tt.in && len(got) != tt.max {
				t.Errorf("Expected truncated length %d, got %d", tt.max, len(got))
			}
		})
	}
}
