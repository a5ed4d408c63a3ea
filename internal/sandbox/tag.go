package sandbox

import (
	"fmt"
	"hash/crc32"
	"regexp"
)

const (
	tagPrefix    = "r8:"
	maxTagLength = 128
	tagKeep      = 118
)

var tagUnsafe = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// Tagify turns a challenge id into a valid image tag. Tags over the length
// limit are cut and suffixed with a checksum of the full tag.
func Tagify(cid string) string {
	tag := tagPrefix + tagUnsafe.ReplaceAllString(cid, "_")
	if len(tag) > maxTagLength {
		tag = tag[:tagKeep] + fmt.Sprintf("%#x", crc32.ChecksumIEEE([]byte(tag)))
	}
	return tag
}
