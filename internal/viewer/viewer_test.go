package viewer

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/petervdpas/scribe/internal/content"
	"github.com/petervdpas/scribe/internal/editor"
	"github.com/petervdpas/scribe/internal/files"
	"github.com/petervdpas/scribe/internal/preview"
)

func testViewer(t *testing.T) Viewer {
	t.Helper()
	disk, err := content.NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	fs := files.NewStore(disk, nil)
	if err := fs.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	ed := editor.NewStore(fs)
	t.Cleanup(ed.Close)
	return Viewer{
		Editor:    ed,
		Files:     fs,
		Preview:   preview.New(""),
		Title:     "scribe",
		Workspace: "/tmp/ws",
		Version:   "test",
	}
}

func TestHandlerServesPageAndAssets(t *testing.T) {
	h, hub := Handler(testViewer(t))
	defer hub.Close()
	srv := httptest.NewServer(h)
	defer srv.Close()

	body := func(path string) (*http.Response, string) {
		t.Helper()
		res, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		defer res.Body.Close()
		b, _ := io.ReadAll(res.Body)
		return res, string(b)
	}

	res, page := body("/")
	if res.StatusCode != http.StatusOK || !strings.Contains(page, "/tmp/ws") || !strings.Contains(page, "scribe test") {
		t.Fatalf("page: %d %q", res.StatusCode, page)
	}
	if res.Header.Get("Cache-Control") == "" {
		t.Fatal("page is cacheable")
	}

	res, js := body("/assets/editor.js")
	if res.StatusCode != http.StatusOK || !strings.HasPrefix(res.Header.Get("Content-Type"), "application/javascript") {
		t.Fatalf("editor.js: %d %q", res.StatusCode, res.Header.Get("Content-Type"))
	}
	if strings.Contains(js, "\n  ") {
		t.Fatal("editor.js not minified")
	}

	if res, _ := body("/assets/missing.js"); res.StatusCode != http.StatusNotFound {
		t.Fatalf("missing asset: %d", res.StatusCode)
	}
	if res, _ := body("/nope"); res.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown page: %d", res.StatusCode)
	}
}

func TestStartStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	addrCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- Start(ctx, "127.0.0.1:0", testViewer(t), func(addr string) { addrCh <- addr })
	}()

	var addr string
	select {
	case addr = <-addrCh:
	case err := <-errCh:
		t.Fatal(err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	res, err := http.Get("http://" + addr + "/api/documents")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d", res.StatusCode)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestStartFailsOnBusyAddress(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	errCh := make(chan error, 1)
	go func() {
		errCh <- Start(context.Background(), ln.Addr().String(), testViewer(t), nil)
	}()
	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("Start succeeded on a busy address")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return")
	}
}
