package repository

import "testing"

func TestEscapeLike(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "anna", want: "anna"},
		{in: "100%", want: `100\%`},
		{in: "a_b", want: `a\_b`},
		{in: `a\b`, want: `a\\b`},
		{in: "", want: ""},
	}

	for _, tt := range tests {
		if got := escapeLike(tt.in); got != tt.want {
			t.Fatalf("escapeLike(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
