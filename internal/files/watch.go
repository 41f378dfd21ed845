package files

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/petervdpas/scribe/internal/content"
)

// Watch keeps Files in sync with the disk until ctx is done. fsnotify does
// not recurse, so every directory of the workspace gets its own watch.
func (s *Store) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := s.addWatches(w, s.disk.RootAbs()); err != nil {
		w.Close()
		return fmt.Errorf("watch workspace: %w", err)
	}
	go s.watchLoop(ctx, w)
	log.Infof("watching %s", s.disk.RootAbs())
	return nil
}

func (s *Store) addWatches(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if rel, rerr := s.disk.Rel(p); rerr == nil && rel != "" && s.disk.Ignored(rel) {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}

func (s *Store) watchLoop(ctx context.Context, w *fsnotify.Watcher) {
	defer w.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			s.handleEvent(ctx, w, event)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.Warnf("watcher error: %v", err)
		}
	}
}

func (s *Store) handleEvent(ctx context.Context, w *fsnotify.Watcher, event fsnotify.Event) {
	rel, err := s.disk.Rel(event.Name)
	if err != nil || rel == "" {
		return
	}
	if s.disk.Ignored(rel) || strings.HasPrefix(path.Base(rel), content.TempPrefix) {
		return
	}

	if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
		s.reload(ctx, w, rel)
	}
	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		s.mu.Lock()
		s.forget(rel)
		s.mu.Unlock()
	}
}

// reload re-reads rel from disk. A new directory is watched and loaded with
// everything already inside it.
func (s *Store) reload(ctx context.Context, w *fsnotify.Watcher, rel string) {
	entry, err := s.disk.Stat(ctx, rel)
	if errors.Is(err, content.ErrNotFound) {
		s.mu.Lock()
		s.forget(rel)
		s.mu.Unlock()
		return
	}
	if err != nil {
		log.Warnf("reload %s: %v", rel, err)
		return
	}

	if !entry.IsDir {
		s.mu.Lock()
		s.publishFile(rel, entry.Content)
		s.mu.Unlock()
		return
	}

	abs, err := s.disk.Abs(rel)
	if err == nil {
		err = s.addWatches(w, abs)
	}
	if err != nil {
		log.Warnf("watch %s: %v", rel, err)
	}
	entries, err := s.disk.SnapshotUnder(ctx, rel)
	if err != nil {
		log.Warnf("reload %s: %v", rel, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.cloneFiles()
	s.addFolders(next, rel)
	for _, e := range entries {
		next[e.Path] = s.decorate(e.Path, direntOf(e))
	}
	s.Files.Set(next)
}
