package files

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/petervdpas/scribe/internal/content"
	"github.com/petervdpas/scribe/internal/state"
	"github.com/petervdpas/scribe/internal/storage"
)

type fixture struct {
	root  string
	db    *storage.DB
	store *Store
}

func newFixture(t *testing.T, files map[string]string) *fixture {
	t.Helper()
	root := t.TempDir()
	for rel, text := range files {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(abs, []byte(text), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	db, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	f := &fixture{root: root, db: db}
	f.store = f.open(t)
	return f
}

func (f *fixture) open(t *testing.T) *Store {
	t.Helper()
	disk, err := content.NewStore(f.root, []string{".git"})
	if err != nil {
		t.Fatal(err)
	}
	s := NewStore(disk, f.db)
	if err := s.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestLoadBuildsTree(t *testing.T) {
	f := newFixture(t, map[string]string{
		"main.go":        "package main\n",
		"docs/readme.md": "# scribe\n",
		".git/HEAD":      "ref: main\n",
	})
	s := f.store

	if got := s.FilesCount(); got != 2 {
		t.Fatalf("FilesCount = %d", got)
	}
	if d := s.GetFileOrFolder("docs"); d == nil || d.Type != TypeFolder {
		t.Fatalf("docs = %+v", d)
	}
	if s.GetFile("docs") != nil {
		t.Fatal("GetFile returned a folder")
	}
	if s.GetFile(".git/HEAD") != nil {
		t.Fatal("ignored file loaded")
	}
	file := s.GetFile("/docs/readme.md")
	if file == nil || file.Content != "# scribe\n" || file.Path != "docs/readme.md" {
		t.Fatalf("readme = %+v", file)
	}
}

func TestLockFile(t *testing.T) {
	f := newFixture(t, map[string]string{"a.txt": "a"})
	s := f.store

	if err := s.LockFile("a.txt"); err != nil {
		t.Fatal(err)
	}
	if !s.IsFileLocked("a.txt") || !s.GetFile("a.txt").IsLocked {
		t.Fatal("file not locked")
	}
	if err := s.SaveFile(context.Background(), "a.txt", "b"); !errors.Is(err, ErrLocked) {
		t.Fatalf("save of locked file: %v", err)
	}
	if err := s.DeleteFile(context.Background(), "a.txt"); !errors.Is(err, ErrLocked) {
		t.Fatalf("delete of locked file: %v", err)
	}
	if err := s.LockFile("missing.txt"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("lock of missing file: %v", err)
	}

	if err := s.UnlockFile("a.txt"); err != nil {
		t.Fatal(err)
	}
	if s.IsFileLocked("a.txt") {
		t.Fatal("still locked")
	}
}

func TestLockFolderCoversDescendants(t *testing.T) {
	f := newFixture(t, map[string]string{
		"src/a.go":     "package src\n",
		"src/sub/b.go": "package sub\n",
		"other.go":     "package other\n",
	})
	s := f.store

	if err := s.LockFolder("src/a.go"); !errors.Is(err, ErrNotDir) {
		t.Fatalf("lock folder on a file: %v", err)
	}
	if err := s.LockFolder("src"); err != nil {
		t.Fatal(err)
	}

	b := s.GetFile("src/sub/b.go")
	if b == nil || !b.IsLocked || b.LockedByFolder != "src" {
		t.Fatalf("b.go = %+v", b)
	}
	if folder, ok := s.IsFileInLockedFolder("src/sub/b.go"); !ok || folder != "src" {
		t.Fatalf("IsFileInLockedFolder = %q %v", folder, ok)
	}
	if !s.IsFolderLocked("src") || !s.IsFolderLocked("src/sub") {
		t.Fatal("folder lock not reported")
	}
	if s.IsFileLocked("other.go") {
		t.Fatal("lock leaked outside the folder")
	}
	if err := s.CreateFile(context.Background(), "src/new.go", "x"); !errors.Is(err, ErrLocked) {
		t.Fatalf("create in locked folder: %v", err)
	}
	if err := s.DeleteFolder(context.Background(), "src"); !errors.Is(err, ErrLocked) {
		t.Fatalf("delete of locked folder: %v", err)
	}

	if err := s.UnlockFolder("src"); err != nil {
		t.Fatal(err)
	}
	if b := s.GetFile("src/sub/b.go"); b.IsLocked || b.LockedByFolder != "" {
		t.Fatalf("b.go after unlock = %+v", b)
	}
}

func TestLocksPersistAcrossLoad(t *testing.T) {
	f := newFixture(t, map[string]string{"a.txt": "a", "dir/b.txt": "b"})
	if err := f.store.LockFile("a.txt"); err != nil {
		t.Fatal(err)
	}
	if err := f.store.LockFolder("dir"); err != nil {
		t.Fatal(err)
	}

	s := f.open(t)
	if !s.IsFileLocked("a.txt") || !s.IsFileLocked("dir/b.txt") {
		t.Fatal("locks not restored")
	}
}

func TestSaveAndModifications(t *testing.T) {
	ctx := context.Background()
	var sb strings.Builder
	for i := 0; i < 50; i++ {
		sb.WriteString("line of text that stays the same\n")
	}
	original := sb.String()
	f := newFixture(t, map[string]string{"big.txt": original, "small.txt": "x"})
	s := f.store

	if mods := s.GetModifiedFiles(); len(mods) != 0 {
		t.Fatalf("fresh load reports modifications: %v", mods)
	}

	if err := s.SaveFile(ctx, "big.txt", original+"one more\n"); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveFile(ctx, "small.txt", "completely different"); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateFile(ctx, "new/file.txt", "fresh"); err != nil {
		t.Fatal(err)
	}

	onDisk, err := os.ReadFile(filepath.Join(f.root, "big.txt"))
	if err != nil || string(onDisk) != original+"one more\n" {
		t.Fatalf("disk content %q, %v", onDisk, err)
	}
	if d := s.GetFileOrFolder("new"); d == nil || d.Type != TypeFolder {
		t.Fatal("parent folder not added")
	}

	mods := s.GetFileModifications()
	if len(mods) != 3 {
		t.Fatalf("modifications = %v", mods)
	}
	if m := mods["big.txt"]; m.Type != ModDiff || !strings.Contains(m.Content, "one more") {
		t.Fatalf("big.txt = %+v", m)
	}
	if m := mods["small.txt"]; m.Type != ModFile || m.Content != "completely different" {
		t.Fatalf("small.txt = %+v", m)
	}
	if m := mods["new/file.txt"]; m.Type != ModFile || m.Content != "fresh" {
		t.Fatalf("new/file.txt = %+v", m)
	}

	s.ResetFileModifications()
	if mods := s.GetModifiedFiles(); len(mods) != 0 {
		t.Fatalf("after reset: %v", mods)
	}
}

func TestCreateAndDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{"keep.txt": "k"})
	s := f.store

	if err := s.CreateFile(ctx, "keep.txt", "again"); !errors.Is(err, content.ErrConflict) {
		t.Fatalf("create over existing file: %v", err)
	}
	if err := s.CreateFolder(ctx, "a/b"); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateFile(ctx, "a/b/c.txt", "c"); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteFile(ctx, "a/b"); !errors.Is(err, ErrIsFolder) {
		t.Fatalf("DeleteFile on folder: %v", err)
	}
	if err := s.DeleteFolder(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if s.GetFileOrFolder("a/b/c.txt") != nil || s.GetFileOrFolder("a") != nil {
		t.Fatal("subtree still present")
	}
	if _, err := os.Stat(filepath.Join(f.root, "a")); !os.IsNotExist(err) {
		t.Fatalf("folder still on disk: %v", err)
	}
	if err := s.DeleteFile(ctx, "keep.txt"); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteFile(ctx, "keep.txt"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

func TestRename(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{
		"notes/a.txt":     "a",
		"notes/sub/b.txt": "b",
		"locked.txt":      "l",
	})
	s := f.store

	if err := s.SaveFile(ctx, "notes/a.txt", "a changed"); err != nil {
		t.Fatal(err)
	}
	if err := s.Rename(ctx, "notes", "archive/2024"); err != nil {
		t.Fatal(err)
	}
	if s.GetFileOrFolder("notes") != nil || s.GetFile("notes/a.txt") != nil {
		t.Fatal("old paths still present")
	}
	if got := s.GetFile("archive/2024/sub/b.txt"); got == nil || got.Content != "b" {
		t.Fatalf("moved file = %+v", got)
	}
	if d := s.GetFileOrFolder("archive"); d == nil || d.Type != TypeFolder {
		t.Fatalf("parent folder = %+v", d)
	}
	if b, err := os.ReadFile(filepath.Join(f.root, "archive", "2024", "a.txt")); err != nil || string(b) != "a changed" {
		t.Fatalf("disk = %q, %v", b, err)
	}
	mods := s.GetFileModifications()
	if _, ok := mods["archive/2024/a.txt"]; !ok || len(mods) != 1 {
		t.Fatalf("baseline did not follow the file: %+v", mods)
	}

	if err := s.Rename(ctx, "archive", "archive/inner"); !errors.Is(err, ErrBadMove) {
		t.Fatalf("move into itself: %v", err)
	}
	if err := s.Rename(ctx, "locked.txt", "archive/2024/a.txt"); !errors.Is(err, content.ErrConflict) {
		t.Fatalf("overwrite: %v", err)
	}
	if err := s.LockFile("locked.txt"); err != nil {
		t.Fatal(err)
	}
	if err := s.Rename(ctx, "locked.txt", "free.txt"); !errors.Is(err, ErrLocked) {
		t.Fatalf("move locked file: %v", err)
	}
	if err := s.Rename(ctx, "missing.txt", "x.txt"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("move missing file: %v", err)
	}
}

func TestSaveUnchangedDoesNotNotify(t *testing.T) {
	f := newFixture(t, map[string]string{"a.txt": "same"})
	s := f.store

	calls := 0
	stop := s.Files.Listen(func(state.MapEvent[*Dirent]) { calls++ })
	defer stop()

	if err := s.SaveFile(context.Background(), "a.txt", "same"); err != nil {
		t.Fatal(err)
	}
	if calls != 0 {
		t.Fatalf("notified %d times for identical content", calls)
	}
}

func TestWatchPicksUpDiskChanges(t *testing.T) {
	f := newFixture(t, map[string]string{"a.txt": "a"})
	s := f.store

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Watch(ctx); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(f.root, "b.txt"), []byte("from outside"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		file := s.GetFile("b.txt")
		return file != nil && file.Content == "from outside"
	})

	if err := os.Remove(filepath.Join(f.root, "a.txt")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return s.GetFile("a.txt") == nil })

	if err := os.MkdirAll(filepath.Join(f.root, "later"), 0o755); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return s.GetFileOrFolder("later") != nil })
	if err := os.WriteFile(filepath.Join(f.root, "later", "c.txt"), []byte("c"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return s.GetFile("later/c.txt") != nil })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
