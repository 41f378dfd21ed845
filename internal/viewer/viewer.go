package viewer

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/petervdpas/scribe/internal/editor"
	"github.com/petervdpas/scribe/internal/files"
	"github.com/petervdpas/scribe/internal/format"
	"github.com/petervdpas/scribe/internal/preview"
	"github.com/petervdpas/scribe/internal/viewer/assets"
	"github.com/petervdpas/scribe/internal/viewer/routes"
)

var log = logging.Logger("viewer")

// activitySize is how many recent actions /api/activity keeps.
const activitySize = 500

type Viewer struct {
	Editor  *editor.Store
	Files   *files.Store
	Format  *format.Engine // nil when formatter hooks are disabled
	Preview *preview.Renderer

	Title     string
	Workspace string
	Version   string
}

// Handler builds the full HTTP surface. The returned hub must be closed
// when the handler is retired.
func Handler(v Viewer) (http.Handler, *routes.Hub) {
	mux := http.NewServeMux()

	mux.Handle("/assets/", http.StripPrefix("/assets/",
		noCache(assets.Handler()),
	))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		assets.RenderPage(w, assets.PageData{
			Title:     v.Title,
			Workspace: v.Workspace,
			Version:   v.Version,
		})
	})

	act := routes.NewActivity(activitySize)
	hub := routes.NewHub(v.Editor, act)
	mux.HandleFunc("/ws", hub.ServeWS)

	deps := routes.Deps{
		Editor:   v.Editor,
		Files:    v.Files,
		Format:   v.Format,
		Preview:  v.Preview,
		Hub:      hub,
		Activity: act,
	}
	routes.RegisterEditor(mux, deps)
	routes.RegisterFiles(mux, deps)
	routes.RegisterActivity(mux, deps)
	routes.RegisterRaw(mux, deps)

	return noCache(mux), hub
}

// Start serves the editor on addr until ctx is cancelled. ready, if not
// nil, receives the bound address once the listener is open.
func Start(ctx context.Context, addr string, v Viewer, ready func(addr string)) error {
	handler, hub := Handler(v)
	defer hub.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		hub.Close()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Infof("serving on http://%s", ln.Addr())
	if ready != nil {
		ready(ln.Addr().String())
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
