// Package files mirrors the workspace tree in memory, owns file and folder
// locks, and tracks which files changed since the last baseline.
package files

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	logging "github.com/ipfs/go-log/v2"
	"github.com/sergi/go-diff/diffmatchpatch"
	"golang.org/x/crypto/blake2b"

	"github.com/petervdpas/scribe/internal/content"
	"github.com/petervdpas/scribe/internal/state"
	"github.com/petervdpas/scribe/internal/storage"
)

var log = logging.Logger("files")

var (
	ErrNotFound = errors.New("file not found")
	ErrLocked   = errors.New("file is locked")
	ErrIsFolder = errors.New("path is a folder")
	ErrNotDir   = errors.New("path is not a folder")
	ErrBadMove  = errors.New("cannot move a folder into itself")
)

// Modification kinds returned by GetFileModifications.
const (
	ModDiff = "diff"
	ModFile = "file"
)

// Modification is the change of one file relative to its baseline: either a
// patch in diff-match-patch text form or the whole current content.
type Modification struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type baseline struct {
	sum  [blake2b.Size256]byte
	text string
}

// Store is the in-memory workspace tree. Files is safe to read from any
// goroutine; writers are serialized by the store.
type Store struct {
	mu   sync.Mutex
	disk *content.Store
	db   *storage.DB

	fileLocks   map[string]bool
	folderLocks map[string]bool
	baselines   map[string]baseline

	dmp *diffmatchpatch.DiffMatchPatch

	Files *state.Map[*Dirent]
}

// NewStore returns an empty store over disk. db may be nil, in which case
// locks only live as long as the process.
func NewStore(disk *content.Store, db *storage.DB) *Store {
	return &Store{
		disk:        disk,
		db:          db,
		fileLocks:   make(map[string]bool),
		folderLocks: make(map[string]bool),
		baselines:   make(map[string]baseline),
		dmp:         diffmatchpatch.New(),
		Files:       state.NewMap[*Dirent](nil),
	}
}

// Load reads the whole workspace, re-applies persisted locks and makes the
// loaded content the modification baseline.
func (s *Store) Load(ctx context.Context) error {
	entries, err := s.disk.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot workspace: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		locks, err := s.db.ListLocks()
		if err != nil {
			return fmt.Errorf("list locks: %w", err)
		}
		for _, l := range locks {
			switch l.Kind {
			case storage.LockFolder:
				s.folderLocks[l.Path] = true
			default:
				s.fileLocks[l.Path] = true
			}
		}
	}

	next := make(FileMap, len(entries))
	for _, e := range entries {
		next[e.Path] = s.decorate(e.Path, direntOf(e))
	}
	s.resetBaselines(next)
	s.Files.Set(next)

	log.Infof("loaded %d entries (%d locks)", len(next), len(s.fileLocks)+len(s.folderLocks))
	return nil
}

// GetFile returns the file at path, or nil when the path is unknown or is a
// folder. It never blocks on writers.
func (s *Store) GetFile(p string) *File {
	p = content.NormalizeRel(p)
	d, ok := s.Files.Lookup(p)
	if !ok || !d.IsFile() {
		return nil
	}
	return fileView(p, d)
}

func (s *Store) GetFileOrFolder(p string) *Dirent {
	d, _ := s.Files.Lookup(content.NormalizeRel(p))
	return d
}

// ReadRaw returns the bytes of a file straight from disk. Binary files,
// whose contents are not kept in the tree, are read this way.
func (s *Store) ReadRaw(ctx context.Context, p string) ([]byte, string, error) {
	p = content.NormalizeRel(p)
	d, ok := s.Files.Lookup(p)
	if !ok {
		return nil, "", ErrNotFound
	}
	if !d.IsFile() {
		return nil, "", ErrIsFolder
	}
	return s.disk.Read(ctx, p)
}

// FilesCount counts file entries, folders excluded.
func (s *Store) FilesCount() int {
	n := 0
	for _, d := range s.Files.Get() {
		if d.IsFile() {
			n++
		}
	}
	return n
}

// --- locks ---

func (s *Store) LockFile(p string) error {
	p = content.NormalizeRel(p)
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.Files.Lookup(p)
	switch {
	case !ok || d == nil:
		return ErrNotFound
	case !d.IsFile():
		return ErrIsFolder
	}
	if s.db != nil {
		if _, err := s.db.PutLock(p, storage.LockFile); err != nil {
			return fmt.Errorf("persist lock: %w", err)
		}
	}
	s.fileLocks[p] = true
	s.Files.SetKey(p, s.decorate(p, d))
	log.Debugf("locked file %s", p)
	return nil
}

func (s *Store) UnlockFile(p string) error {
	p = content.NormalizeRel(p)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		if err := s.db.DeleteLock(p, storage.LockFile); err != nil {
			return fmt.Errorf("remove lock: %w", err)
		}
	}
	delete(s.fileLocks, p)
	if d, ok := s.Files.Lookup(p); ok && d != nil {
		s.Files.SetKey(p, s.decorate(p, d))
	}
	return nil
}

// LockFolder locks a folder and, through it, everything beneath it.
func (s *Store) LockFolder(p string) error {
	p = content.NormalizeRel(p)
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.Files.Lookup(p)
	switch {
	case !ok || d == nil:
		return ErrNotFound
	case d.Type != TypeFolder:
		return ErrNotDir
	}
	if s.db != nil {
		if _, err := s.db.PutLock(p, storage.LockFolder); err != nil {
			return fmt.Errorf("persist lock: %w", err)
		}
	}
	s.folderLocks[p] = true
	s.redecorateUnder(p)
	log.Debugf("locked folder %s", p)
	return nil
}

func (s *Store) UnlockFolder(p string) error {
	p = content.NormalizeRel(p)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		if err := s.db.DeleteLock(p, storage.LockFolder); err != nil {
			return fmt.Errorf("remove lock: %w", err)
		}
	}
	delete(s.folderLocks, p)
	s.redecorateUnder(p)
	return nil
}

// IsFileLocked reports whether the file is locked on its own or through a
// locked ancestor folder.
func (s *Store) IsFileLocked(p string) bool {
	f := s.GetFile(p)
	return f != nil && f.IsLocked
}

func (s *Store) IsFolderLocked(p string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p = content.NormalizeRel(p)
	if s.folderLocks[p] {
		return true
	}
	_, ok := s.lockingFolder(p)
	return ok
}

// IsFileInLockedFolder returns the nearest locked ancestor folder of p.
func (s *Store) IsFileInLockedFolder(p string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lockingFolder(content.NormalizeRel(p))
}

// lockingFolder walks up from the parent of p. Caller holds mu.
func (s *Store) lockingFolder(p string) (string, bool) {
	for dir := parentOf(p); dir != ""; dir = parentOf(dir) {
		if s.folderLocks[dir] {
			return dir, true
		}
	}
	return "", false
}

// decorate returns a copy of d with lock fields derived from the lock sets.
// Caller holds mu.
func (s *Store) decorate(p string, d *Dirent) *Dirent {
	out := *d
	out.IsLocked = false
	out.LockedByFolder = ""
	if folder, ok := s.lockingFolder(p); ok {
		out.IsLocked = true
		out.LockedByFolder = folder
	}
	switch d.Type {
	case TypeFile:
		out.IsLocked = out.IsLocked || s.fileLocks[p]
	case TypeFolder:
		out.IsLocked = out.IsLocked || s.folderLocks[p]
	}
	return &out
}

func (s *Store) redecorateUnder(dir string) {
	cur := s.Files.Get()
	next := make(FileMap, len(cur))
	for p, d := range cur {
		if d != nil && isWithin(p, dir) {
			next[p] = s.decorate(p, d)
			continue
		}
		next[p] = d
	}
	s.Files.Set(next)
}

// --- modifications ---

// ResetFileModifications makes the current content the new baseline.
func (s *Store) ResetFileModifications() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetBaselines(s.Files.Get())
}

func (s *Store) resetBaselines(m FileMap) {
	s.baselines = make(map[string]baseline, len(m))
	for p, d := range m {
		if d.IsFile() && !d.IsBinary {
			s.baselines[p] = baseline{sum: blake2b.Sum256([]byte(d.Content)), text: d.Content}
		}
	}
}

// GetModifiedFiles returns the current content of every text file that
// differs from its baseline or has none.
func (s *Store) GetModifiedFiles() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string)
	for p, d := range s.Files.Get() {
		if !d.IsFile() || d.IsBinary {
			continue
		}
		if b, ok := s.baselines[p]; ok && b.sum == blake2b.Sum256([]byte(d.Content)) {
			continue
		}
		out[p] = d.Content
	}
	return out
}

// GetFileModifications describes each modified file as a patch against its
// baseline, falling back to the full content for new files or when the
// patch would be larger than the file.
func (s *Store) GetFileModifications() map[string]Modification {
	modified := s.GetModifiedFiles()

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]Modification, len(modified))
	for p, current := range modified {
		b, ok := s.baselines[p]
		if !ok {
			out[p] = Modification{Type: ModFile, Content: current}
			continue
		}
		patch := s.dmp.PatchToText(s.dmp.PatchMake(b.text, current))
		if len(patch) > len(current) {
			out[p] = Modification{Type: ModFile, Content: current}
			continue
		}
		out[p] = Modification{Type: ModDiff, Content: patch}
	}
	return out
}

// --- disk operations ---

// SaveFile writes text to an existing or new file unless it is locked.
func (s *Store) SaveFile(ctx context.Context, p, text string) error {
	p = content.NormalizeRel(p)
	s.mu.Lock()
	defer s.mu.Unlock()

	if d, ok := s.Files.Lookup(p); ok && d != nil {
		if d.Type == TypeFolder {
			return ErrIsFolder
		}
		if d.IsLocked {
			return ErrLocked
		}
	} else if _, locked := s.lockingFolder(p); locked {
		return ErrLocked
	}

	if _, err := s.disk.Write(ctx, p, []byte(text), ""); err != nil {
		return fmt.Errorf("save %s: %w", p, err)
	}
	s.publishFile(p, []byte(text))
	log.Debugf("saved %s", p)
	return nil
}

// CreateFile creates a new file. It fails if the path already exists.
func (s *Store) CreateFile(ctx context.Context, p, text string) error {
	p = content.NormalizeRel(p)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, locked := s.lockingFolder(p); locked {
		return ErrLocked
	}
	if _, err := s.disk.Write(ctx, p, []byte(text), "none"); err != nil {
		return fmt.Errorf("create %s: %w", p, err)
	}
	s.publishFile(p, []byte(text))
	return nil
}

func (s *Store) CreateFolder(ctx context.Context, p string) error {
	p = content.NormalizeRel(p)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, locked := s.lockingFolder(p); locked {
		return ErrLocked
	}
	if err := s.disk.Mkdir(ctx, p); err != nil {
		return fmt.Errorf("create folder %s: %w", p, err)
	}
	next := s.cloneFiles()
	s.addFolders(next, p)
	s.Files.Set(next)
	return nil
}

func (s *Store) DeleteFile(ctx context.Context, p string) error {
	p = content.NormalizeRel(p)
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.Files.Lookup(p)
	switch {
	case !ok || d == nil:
		return ErrNotFound
	case d.Type == TypeFolder:
		return ErrIsFolder
	case d.IsLocked:
		return ErrLocked
	}
	if err := s.disk.DeletePath(ctx, p, false); err != nil && !errors.Is(err, content.ErrNotFound) {
		return fmt.Errorf("delete %s: %w", p, err)
	}
	s.forget(p)
	return nil
}

// DeleteFolder removes a folder and everything beneath it. It refuses when
// the folder or any file inside it is locked.
func (s *Store) DeleteFolder(ctx context.Context, p string) error {
	p = content.NormalizeRel(p)
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.Files.Lookup(p)
	switch {
	case !ok || d == nil:
		return ErrNotFound
	case d.Type != TypeFolder:
		return ErrNotDir
	}
	for q, e := range s.Files.Get() {
		if e != nil && e.IsLocked && isWithin(q, p) {
			return ErrLocked
		}
	}
	if err := s.disk.DeletePath(ctx, p, true); err != nil && !errors.Is(err, content.ErrNotFound) {
		return fmt.Errorf("delete folder %s: %w", p, err)
	}
	s.forget(p)
	return nil
}

// Rename moves a file or folder, with everything beneath it, to to. Locked
// entries are never moved and an existing destination is never overwritten.
// Modification baselines travel with the moved files.
func (s *Store) Rename(ctx context.Context, from, to string) error {
	from = content.NormalizeRel(from)
	to = content.NormalizeRel(to)
	if from == "" || to == "" {
		return content.ErrEmptyPath
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.Files.Lookup(from)
	switch {
	case !ok || d == nil:
		return ErrNotFound
	case from == to:
		return nil
	case d.Type == TypeFolder && isWithin(to, from):
		return ErrBadMove
	}
	if _, exists := s.Files.Lookup(to); exists {
		return fmt.Errorf("rename to %s: %w", to, content.ErrConflict)
	}
	for q, e := range s.Files.Get() {
		if e != nil && e.IsLocked && isWithin(q, from) {
			return ErrLocked
		}
	}
	if _, locked := s.lockingFolder(to); locked {
		return ErrLocked
	}

	if err := s.disk.Rename(ctx, from, to); err != nil {
		return fmt.Errorf("rename %s: %w", from, err)
	}

	cur := s.Files.Get()
	next := make(FileMap, len(cur))
	moved := make(FileMap)
	for q, e := range cur {
		if !isWithin(q, from) {
			next[q] = e
			continue
		}
		dest := to + strings.TrimPrefix(q, from)
		moved[dest] = e
		if b, ok := s.baselines[q]; ok {
			delete(s.baselines, q)
			s.baselines[dest] = b
		}
	}
	s.addFolders(next, parentOf(to))
	for q, e := range moved {
		next[q] = s.decorate(q, e)
	}
	s.Files.Set(next)
	log.Debugf("renamed %s to %s", from, to)
	return nil
}

// publishFile records new content for p and makes sure its parent folders
// exist in the tree. Caller holds mu.
func (s *Store) publishFile(p string, b []byte) {
	d := &Dirent{Type: TypeFile, Content: string(b), IsBinary: content.IsBinary(b)}
	if d.IsBinary {
		d.Content = ""
	}
	next := s.cloneFiles()
	s.addFolders(next, parentOf(p))
	if prev := next[p]; prev != nil && sameContent(prev, d) {
		if len(next) == s.Files.Len() {
			return
		}
	}
	next[p] = s.decorate(p, d)
	s.Files.Set(next)
}

// forget drops p and everything beneath it from the tree. Locks on removed
// paths are released. Caller holds mu.
func (s *Store) forget(p string) {
	cur := s.Files.Get()
	next := make(FileMap, len(cur))
	removed := 0
	for q, d := range cur {
		if isWithin(q, p) {
			removed++
			s.dropLocks(q)
			delete(s.baselines, q)
			continue
		}
		next[q] = d
	}
	if removed == 0 {
		return
	}
	s.Files.Set(next)
}

func (s *Store) dropLocks(p string) {
	if s.fileLocks[p] {
		delete(s.fileLocks, p)
		if s.db != nil {
			if err := s.db.DeleteLock(p, storage.LockFile); err != nil {
				log.Warnf("release lock of removed file %s: %v", p, err)
			}
		}
	}
	if s.folderLocks[p] {
		delete(s.folderLocks, p)
		if s.db != nil {
			if err := s.db.DeleteLock(p, storage.LockFolder); err != nil {
				log.Warnf("release lock of removed folder %s: %v", p, err)
			}
		}
	}
}

func (s *Store) addFolders(m FileMap, dir string) {
	for ; dir != ""; dir = parentOf(dir) {
		if d := m[dir]; d != nil && d.Type == TypeFolder {
			return
		}
		m[dir] = s.decorate(dir, &Dirent{Type: TypeFolder})
	}
}

func (s *Store) cloneFiles() FileMap {
	cur := s.Files.Get()
	next := make(FileMap, len(cur)+1)
	for p, d := range cur {
		next[p] = d
	}
	return next
}

func direntOf(e content.Entry) *Dirent {
	if e.IsDir {
		return &Dirent{Type: TypeFolder}
	}
	d := &Dirent{Type: TypeFile, IsBinary: e.IsBinary}
	if !e.IsBinary {
		d.Content = string(e.Content)
	}
	return d
}

func sameContent(a, b *Dirent) bool {
	return a.Type == b.Type && a.Content == b.Content && a.IsBinary == b.IsBinary
}

func parentOf(p string) string {
	dir := path.Dir(p)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

// isWithin reports whether p is dir or lies beneath it.
func isWithin(p, dir string) bool {
	return p == dir || strings.HasPrefix(p, dir+"/")
}
