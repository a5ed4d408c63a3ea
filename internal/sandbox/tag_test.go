package sandbox_test

import (
	"strings"
	"testing"

	"ctfoj/internal/sandbox"
)

func TestTagify(t *testing.T) {
	if got := sandbox.Tagify("DockerHelloWorld"); got != "r8:DockerHelloWorld" {
		t.Fatalf("unexpected tag: %s", got)
	}
	if got := sandbox.Tagify("FromFolder(web/intro 1)"); got != "r8:FromFolder_web_intro_1_" {
		t.Fatalf("unexpected tag: %s", got)
	}

	long := sandbox.Tagify(strings.Repeat("a", 200))
	if len(long) > 128 {
		t.Fatalf("tag too long: %d", len(long))
	}
	if !strings.HasPrefix(long, "r8:aaa") || !strings.Contains(long, "0x") {
		t.Fatalf("expected truncated tag with checksum, got %s", long)
	}
	if sandbox.Tagify(strings.Repeat("a", 200)) == sandbox.Tagify(strings.Repeat("a", 201)) {
		t.Fatalf("expected different checksums for different ids")
	}
}
