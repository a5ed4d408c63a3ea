package service_test

import (
	"testing"

	"ctfoj/internal/flag/service"
)

func TestNormalize(t *testing.T) {
	const canonical = "__flag__{0123456789abcdef0123456789abcdef}"
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"canonical", canonical, canonical},
		{"uppercase", "__FLAG__{0123456789ABCDEF0123456789ABCDEF}", canonical},
		{"whitespace", " __flag__{0123456789abcdef\n0123456789abcdef} ", canonical},
		{"bare hex", "0123456789abcdef0123456789abcdef", canonical},
		{"other wrapper", "flag{0123456789abcdef0123456789abcdef}", canonical},
		{"spaced hex", "  AB12cd34 ab12 CD34 ab12cd34 ab12cd34  ", "__flag__{ab12cd34ab12cd34ab12cd34ab12cd34}"},
		{"no hex run", "__flag__{hello}", "__flag__{hello}"},
		{"short hex", "  abc123  ", "  abc123  "},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := service.Normalize(tc.input); got != tc.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}
