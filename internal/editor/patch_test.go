package editor

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestDiffMatchPatchOptions(t *testing.T) {
	p := NewDiffMatchPatch(PatchOptions{
		DiffTimeout:          250 * time.Millisecond,
		MatchThreshold:       0.3,
		PatchDeleteThreshold: 0.4,
	})
	if p.dmp.DiffTimeout != 250*time.Millisecond {
		t.Fatalf("DiffTimeout = %v", p.dmp.DiffTimeout)
	}
	if p.dmp.MatchThreshold != 0.3 || p.dmp.PatchDeleteThreshold != 0.4 {
		t.Fatalf("thresholds = %v / %v", p.dmp.MatchThreshold, p.dmp.PatchDeleteThreshold)
	}

	d := NewDiffMatchPatch(PatchOptions{})
	if d.dmp.MatchThreshold != 0.5 {
		t.Fatalf("default MatchThreshold = %v", d.dmp.MatchThreshold)
	}
}

func TestDiffMatchPatchRoundTrip(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&sb, "func f%d() {\n\tfmt.Println(\"hello %d\")\n}\n", i, i)
	}
	base := sb.String()
	next := strings.Replace(base, "hello", "world", 7)
	next = strings.Replace(next, "func f0", "func run", 1) + "// end\n"

	got, applied := NewDiffMatchPatch(PatchOptions{}).Patch(base, next)

	if got != next {
		t.Fatalf("patched text differs from target")
	}
	if len(applied) == 0 {
		t.Fatal("expected at least one patch")
	}
	for i, ok := range applied {
		if !ok {
			t.Fatalf("patch %d failed", i)
		}
	}
}

func TestDiffMatchPatchIdentical(t *testing.T) {
	got, applied := NewDiffMatchPatch(PatchOptions{}).Patch("same", "same")
	if got != "same" || len(applied) != 0 {
		t.Fatalf("got %q with %d patches", got, len(applied))
	}
}

func TestDiffMatchPatchInvalidUTF8(t *testing.T) {
	base := strings.Repeat("x", 9000) + "caf\xe9 au lait\n"
	next := strings.Repeat("x", 9000) + "caf\xe9 au lait\nmore\n"

	got, applied := NewDiffMatchPatch(PatchOptions{}).Patch(base, next)

	want := strings.ToValidUTF8(next, "\uFFFD")
	if got != want {
		t.Fatalf("got %q", got[9000:])
	}
	for i, ok := range applied {
		if !ok {
			t.Fatalf("patch %d failed", i)
		}
	}
}
