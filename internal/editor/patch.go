package editor

import (
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Patcher turns a full replacement text into a patch against base and
// applies it. applied has one flag per patch; a false flag means that patch
// found no matching context and was skipped.
type Patcher interface {
	Patch(base, next string) (result string, applied []bool)
}

// PatchOptions tunes the diff-match-patch engine. Zero fields keep the
// library defaults.
type PatchOptions struct {
	DiffTimeout          time.Duration
	MatchThreshold       float64
	PatchDeleteThreshold float64
}

// DiffMatchPatch is the default Patcher.
type DiffMatchPatch struct {
	dmp *diffmatchpatch.DiffMatchPatch
}

func NewDiffMatchPatch(opts PatchOptions) *DiffMatchPatch {
	dmp := diffmatchpatch.New()
	if opts.DiffTimeout > 0 {
		dmp.DiffTimeout = opts.DiffTimeout
	}
	if opts.MatchThreshold > 0 {
		dmp.MatchThreshold = opts.MatchThreshold
	}
	if opts.PatchDeleteThreshold > 0 {
		dmp.PatchDeleteThreshold = opts.PatchDeleteThreshold
	}
	return &DiffMatchPatch{dmp: dmp}
}

// Patch diffs base against next, merges fragmentary edits with a semantic
// cleanup pass, and applies the resulting patches back onto base. Invalid
// UTF-8 on either side is replaced with U+FFFD first; diffmatchpatch indexes
// by rune and panics on it.
func (p *DiffMatchPatch) Patch(base, next string) (string, []bool) {
	base = strings.ToValidUTF8(base, "\uFFFD")
	next = strings.ToValidUTF8(next, "\uFFFD")
	diffs := p.dmp.DiffMain(base, next, true)
	diffs = p.dmp.DiffCleanupSemantic(diffs)
	patches := p.dmp.PatchMake(base, diffs)
	return p.dmp.PatchApply(patches, base)
}
