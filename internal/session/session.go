// Package session saves the editor's selection and scroll positions between
// runs so a restarted server picks up where the browser left off.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/petervdpas/scribe/internal/editor"
)

// Snapshot is the persisted part of an editor store. Document contents are
// not kept: they are reloaded from disk.
type Snapshot struct {
	SelectedFile string                           `cbor:"1,keyasint,omitempty"`
	Scroll       map[string]editor.ScrollPosition `cbor:"2,keyasint,omitempty"`
	SavedAt      time.Time                        `cbor:"3,keyasint,omitempty"`
}

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
}

// Capture reads the selection and every known scroll position from s.
func Capture(s *editor.Store) Snapshot {
	snap := Snapshot{
		SelectedFile: s.SelectedFile.Get(),
		Scroll:       make(map[string]editor.ScrollPosition),
		SavedAt:      time.Now().UTC(),
	}
	for p, doc := range s.Documents.Get() {
		if doc.Scroll != nil {
			snap.Scroll[p] = *doc.Scroll
		}
	}
	return snap
}

// Restore applies snap to s. Scroll positions of documents that are no
// longer open are dropped.
func Restore(s *editor.Store, snap Snapshot) {
	for p, pos := range snap.Scroll {
		s.UpdateScrollPosition(p, pos)
	}
	if snap.SelectedFile != "" {
		s.SetSelectedFile(snap.SelectedFile)
	}
}

func Save(path string, snap Snapshot) error {
	b, err := encMode.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load reads a snapshot. A missing file yields an empty snapshot.
func Load(path string) (Snapshot, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read session: %w", err)
	}
	var snap Snapshot
	if err := cbor.Unmarshal(b, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode session: %w", err)
	}
	return snap, nil
}
