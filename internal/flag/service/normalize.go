package service

import (
	"regexp"
	"strings"
)

const (
	flagPrefix = "__flag__{"
	flagSuffix = "}"
)

var hexToken = regexp.MustCompile(`[0-9a-f]{32}`)

// Normalize repairs common paste errors: whitespace is removed, case is
// folded and the first 32-digit hex run is wrapped into the canonical form.
// Input without such a run is returned unchanged.
func Normalize(token string) string {
	compact := strings.ToLower(strings.Join(strings.Fields(token), ""))
	m := hexToken.FindString(compact)
	if m == "" {
		return token
	}
	return flagPrefix + m + flagSuffix
}
