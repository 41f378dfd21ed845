// Package content reads and writes workspace files on disk. Every path is
// workspace-relative with forward slashes and is confined to the root.
package content

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"
)

var (
	ErrOutsideRoot = errors.New("path outside root")
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrEmptyPath   = errors.New("empty path")
)

// sniffLen is how much of a file is inspected to decide whether it is binary.
const sniffLen = 8000

// TempPrefix prefixes the scratch files Write renames into place.
const TempPrefix = ".scribe-"

type Store struct {
	root   string // absolute workspace root
	ignore map[string]bool
}

// NewStore roots a store at dir. Entries whose base name is in ignore are
// skipped by Snapshot and ListTree.
func NewStore(dir string, ignore []string) (*Store, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	ig := make(map[string]bool, len(ignore))
	for _, name := range ignore {
		ig[name] = true
	}
	return &Store{root: root, ignore: ig}, nil
}

func (s *Store) RootAbs() string { return s.root }

func (s *Store) EnsureRoot() error {
	return os.MkdirAll(s.root, 0o755)
}

// Ignored reports whether any segment of rel is on the ignore list.
func (s *Store) Ignored(rel string) bool {
	for _, seg := range strings.Split(NormalizeRel(rel), "/") {
		if s.ignore[seg] {
			return true
		}
	}
	return false
}

// Entry is one node of a workspace snapshot.
type Entry struct {
	Path     string
	IsDir    bool
	Content  []byte
	IsBinary bool
	ETag     string
}

// Snapshot walks the whole workspace and returns every directory and file
// with its content.
func (s *Store) Snapshot(ctx context.Context) ([]Entry, error) {
	return s.walk(ctx, s.root)
}

// SnapshotUnder is Snapshot restricted to the directory relDir, which is
// itself included.
func (s *Store) SnapshotUnder(ctx context.Context, relDir string) ([]Entry, error) {
	abs, err := s.cleanAbs(relDir)
	if err != nil {
		return nil, err
	}
	return s.walk(ctx, abs)
}

func (s *Store) walk(ctx context.Context, start string) ([]Entry, error) {
	var out []Entry
	err := filepath.WalkDir(start, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == s.root {
			return nil
		}
		if s.ignore[d.Name()] || strings.HasPrefix(d.Name(), TempPrefix) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := s.rel(p)
		if err != nil {
			return err
		}
		if d.IsDir() {
			out = append(out, Entry{Path: rel, IsDir: true})
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		b, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		out = append(out, Entry{
			Path:     rel,
			Content:  b,
			IsBinary: IsBinary(b),
			ETag:     etagBytes(b),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Stat returns the entry for one path, reading file content.
func (s *Store) Stat(ctx context.Context, rel string) (Entry, error) {
	abs, err := s.cleanAbs(rel)
	if err != nil {
		return Entry{}, err
	}
	st, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}
	rel = NormalizeRel(rel)
	if st.IsDir() {
		return Entry{Path: rel, IsDir: true}, nil
	}
	b, etag, err := s.Read(ctx, rel)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Path: rel, Content: b, IsBinary: IsBinary(b), ETag: etag}, nil
}

// Read returns bytes + etag.
func (s *Store) Read(ctx context.Context, rel string) ([]byte, string, error) {
	abs, err := s.cleanAbs(rel)
	if err != nil {
		return nil, "", err
	}

	b, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", ErrNotFound
		}
		return nil, "", err
	}
	return b, etagBytes(b), nil
}

// Write writes atomically. If ifMatch is non-empty, it must match the
// current etag ("none" requires the file not to exist yet).
func (s *Store) Write(ctx context.Context, rel string, data []byte, ifMatch string) (string, error) {
	if NormalizeRel(rel) == "" {
		return "", ErrEmptyPath
	}
	abs, err := s.cleanAbs(rel)
	if err != nil {
		return "", err
	}

	if ifMatch != "" {
		_, curETag, err := s.Read(ctx, rel)
		switch {
		case err != nil && !errors.Is(err, ErrNotFound):
			return "", err
		case err == nil && curETag != ifMatch:
			return "", ErrConflict
		case errors.Is(err, ErrNotFound) && ifMatch != "none":
			return "", ErrConflict
		}
	}

	if st, err := os.Stat(abs); err == nil && st.IsDir() {
		return "", ErrConflict
	}

	dir := filepath.Dir(abs)
	if err := s.mkdirAllChecked(dir); err != nil {
		return "", err
	}

	f, err := os.CreateTemp(dir, TempPrefix+"*")
	if err != nil {
		return "", err
	}
	tmp := f.Name()

	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(tmp)
	}

	if _, err := f.Write(data); err != nil {
		cleanup()
		return "", err
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}

	if err := os.Rename(tmp, abs); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}

	return etagBytes(data), nil
}

// Mkdir creates a directory and its parents. It refuses to descend through
// an existing file.
func (s *Store) Mkdir(ctx context.Context, relDir string) error {
	if NormalizeRel(relDir) == "" {
		return ErrEmptyPath
	}
	abs, err := s.cleanAbs(relDir)
	if err != nil {
		return err
	}
	return s.mkdirAllChecked(abs)
}

// DeletePath deletes a file or directory. Directories are only removed
// recursively when asked to.
func (s *Store) DeletePath(ctx context.Context, rel string, recursive bool) error {
	if NormalizeRel(rel) == "" {
		return ErrEmptyPath
	}
	abs, err := s.cleanAbs(rel)
	if err != nil {
		return err
	}

	st, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}

	if st.IsDir() && recursive {
		return os.RemoveAll(abs)
	}
	if err := os.Remove(abs); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// Rename moves a file or folder within the root.
func (s *Store) Rename(ctx context.Context, fromRel, toRel string) error {
	fromAbs, err := s.cleanAbs(fromRel)
	if err != nil {
		return err
	}
	toAbs, err := s.cleanAbs(toRel)
	if err != nil {
		return err
	}
	if err := s.mkdirAllChecked(filepath.Dir(toAbs)); err != nil {
		return err
	}
	if err := os.Rename(fromAbs, toAbs); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// Abs resolves rel to an absolute path inside the root.
func (s *Store) Abs(rel string) (string, error) {
	return s.cleanAbs(rel)
}

// Rel converts an absolute path under the root back to a workspace path.
func (s *Store) Rel(abs string) (string, error) {
	return s.rel(abs)
}

// IsBinary reports whether b looks like binary data: a NUL byte within the
// sniffed prefix, or any invalid UTF-8 anywhere. Text documents are always
// valid UTF-8.
func IsBinary(b []byte) bool {
	head := b
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	if bytes.IndexByte(head, 0) >= 0 {
		return true
	}
	return !utf8.Valid(b)
}

// NormalizeRel cleans a workspace path: forward slashes, no leading slash,
// "" for the root.
func NormalizeRel(p string) string {
	p = strings.TrimSpace(p)
	p = strings.ReplaceAll(p, `\`, "/")
	p = strings.TrimPrefix(p, "/")
	p = path.Clean(p)
	if p == "." || p == "/" {
		return ""
	}
	return strings.TrimPrefix(p, "/")
}

// --- safety boundary ---

func (s *Store) cleanAbs(rel string) (string, error) {
	rel = NormalizeRel(rel)
	abs := filepath.Clean(filepath.Join(s.root, filepath.FromSlash(rel)))

	rootClean := filepath.Clean(s.root)
	rootPrefix := rootClean + string(filepath.Separator)
	if abs != rootClean && !strings.HasPrefix(abs, rootPrefix) {
		return "", ErrOutsideRoot
	}

	// prevent symlink escape on existing paths
	if p, err := filepath.EvalSymlinks(abs); err == nil {
		realRoot, rerr := filepath.EvalSymlinks(rootClean)
		if rerr != nil {
			realRoot = rootClean
		}
		if p != realRoot && !strings.HasPrefix(p, realRoot+string(filepath.Separator)) {
			return "", ErrOutsideRoot
		}
	}

	return abs, nil
}

func (s *Store) rel(abs string) (string, error) {
	r, err := filepath.Rel(s.root, abs)
	if err != nil {
		return "", err
	}
	r = filepath.ToSlash(r)
	if r == ".." || strings.HasPrefix(r, "../") {
		return "", ErrOutsideRoot
	}
	return NormalizeRel(r), nil
}

// mkdirAllChecked creates directories but refuses if any component in the path is a file.
func (s *Store) mkdirAllChecked(absDir string) error {
	absDir = filepath.Clean(absDir)
	rootClean := filepath.Clean(s.root)

	if absDir != rootClean && !strings.HasPrefix(absDir, rootClean+string(filepath.Separator)) {
		return ErrOutsideRoot
	}

	rel, err := filepath.Rel(rootClean, absDir)
	if err != nil {
		return err
	}
	if rel == "." {
		return os.MkdirAll(rootClean, 0o755)
	}
	cur := rootClean
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if part == "" {
			continue
		}
		cur = filepath.Join(cur, part)

		st, err := os.Stat(cur)
		switch {
		case err == nil && !st.IsDir():
			return ErrConflict
		case err == nil:
			continue
		case errors.Is(err, os.ErrNotExist):
			if mkErr := os.Mkdir(cur, 0o755); mkErr != nil && !errors.Is(mkErr, os.ErrExist) {
				return mkErr
			}
		default:
			return err
		}
	}
	return nil
}

func etagBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(sum[:])
}
