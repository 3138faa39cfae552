package middleware

import "testing"

func TestExtractSlug(t *testing.T) {
	cases := []struct {
		host string
		root string
		want string
	}{
		{"acme.benefits.example", "benefits.example", "acme"},
		{"ACME.benefits.example:8080", "benefits.example", "acme"},
		{"benefits.example", "benefits.example", ""},
		{"deep.acme.benefits.example", "benefits.example", ""},
		{"acme.other.example", "benefits.example", ""},
		{"localhost", "localhost", ""},
		{"acme.localhost:3000", "localhost", "acme"},
	}
	for _, tc := range cases {
		if got := extractSlug(tc.host, tc.root); got != tc.want {
			t.Errorf("extractSlug(%q, %q) = %q, want %q", tc.host, tc.root, got, tc.want)
		}
	}
}
