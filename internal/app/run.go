package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/petervdpas/scribe/internal/config"
	"github.com/petervdpas/scribe/internal/content"
	"github.com/petervdpas/scribe/internal/editor"
	"github.com/petervdpas/scribe/internal/files"
	"github.com/petervdpas/scribe/internal/format"
	"github.com/petervdpas/scribe/internal/preview"
	"github.com/petervdpas/scribe/internal/session"
	"github.com/petervdpas/scribe/internal/state"
	"github.com/petervdpas/scribe/internal/storage"
	"github.com/petervdpas/scribe/internal/util"
	"github.com/petervdpas/scribe/internal/viewer"
)

type Options struct {
	Dir     string // directory holding scribe.json; relative config paths resolve against it
	CfgPath string
	Cfg     config.Config
	Version string

	// Ready, if set, is called with the bound HTTP address once the editor
	// is being served.
	Ready func(addr string)
}

// Run loads the workspace, serves the editor and blocks until ctx is
// cancelled. The session is saved on the way out.
func Run(ctx context.Context, opt Options) error {
	cfg := opt.Cfg

	if err := setupLogging(cfg.Logging.Level, cfg.Viewer.Debug); err != nil {
		return err
	}

	root := util.ResolvePath(opt.Dir, cfg.Workspace.Root)
	logBanner(root, opt.CfgPath)

	// ── Workspace on disk
	disk, err := content.NewStore(root, cfg.Workspace.Ignore)
	if err != nil {
		return fmt.Errorf("workspace: %w", err)
	}
	if err := disk.EnsureRoot(); err != nil {
		return fmt.Errorf("workspace: %w", err)
	}

	// ── Lock database
	db, err := storage.Open(util.ResolvePath(opt.Dir, cfg.Storage.DataDir))
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close()
	log.Printf("STORAGE: %s", db.Path())

	// ── Files
	filesStore := files.NewStore(disk, db)
	if err := filesStore.Load(ctx); err != nil {
		return fmt.Errorf("load workspace: %w", err)
	}
	log.Printf("FILES: %d file(s) loaded", filesStore.FilesCount())

	// ── Editor, seeded from the last session
	sessionPath := ""
	if cfg.Editor.SessionFile != "" {
		sessionPath = util.ResolvePath(opt.Dir, cfg.Editor.SessionFile)
	}
	snap, err := loadSession(sessionPath)
	if err != nil {
		log.Printf("SESSION: ignoring unreadable session: %v", err)
	}

	ed := editor.NewStore(filesStore,
		editor.WithPatcher(editor.NewDiffMatchPatch(editor.PatchOptions{
			DiffTimeout:          cfg.Editor.DiffTimeout(),
			MatchThreshold:       cfg.Editor.MatchThreshold,
			PatchDeleteThreshold: cfg.Editor.PatchDeleteThreshold,
		})),
		editor.WithInitialState(nil, snap.SelectedFile),
	)
	defer ed.Close()

	stopSync := filesStore.Files.Listen(func(evt state.MapEvent[*files.Dirent]) {
		ed.SyncDocuments(evt.Entries)
	})
	defer stopSync()
	ed.SetDocuments(filesStore.Files.Get())
	session.Restore(ed, snap)

	if cfg.Workspace.Watch {
		if err := filesStore.Watch(ctx); err != nil {
			log.Printf("FILES: watcher disabled: %v", err)
		}
	}

	// ── Formatter hooks (optional)
	var fmtEngine *format.Engine
	if cfg.Format.Enabled {
		fmtEngine, err = format.NewEngine(
			util.ResolvePath(opt.Dir, cfg.Format.ScriptDir),
			time.Duration(cfg.Format.TimeoutSeconds)*time.Second,
			format.WithMemoryLimit(cfg.Format.MaxMemoryMB),
		)
		if err != nil {
			log.Printf("FORMAT: disabled: %v", err)
			fmtEngine = nil
		} else {
			defer fmtEngine.Close()
		}
	}

	// ── Viewer (blocks until ctx is done)
	err = viewer.Start(ctx, cfg.Viewer.HTTPAddr, viewer.Viewer{
		Editor:    ed,
		Files:     filesStore,
		Format:    fmtEngine,
		Preview:   preview.New(cfg.Preview.Style),
		Title:     "scribe",
		Workspace: root,
		Version:   opt.Version,
	}, opt.Ready)

	if sessionPath != "" {
		if serr := session.Save(sessionPath, session.Capture(ed)); serr != nil {
			log.Printf("SESSION: save failed: %v", serr)
		} else {
			log.Printf("SESSION: saved to %s", sessionPath)
		}
	}

	if err != nil {
		return fmt.Errorf("viewer: %w", err)
	}
	return nil
}

func loadSession(path string) (session.Snapshot, error) {
	if path == "" {
		return session.Snapshot{}, nil
	}
	return session.Load(path)
}
