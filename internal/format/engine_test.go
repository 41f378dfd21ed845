package format

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestEngine(t *testing.T, scripts map[string]string) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()
	for name, src := range scripts {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	e, err := NewEngine(dir, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(e.Close)
	return e, dir
}

const trimTrailing = `
function format(path, content)
  local out = {}
  for line in (content .. "\n"):gmatch("(.-)\n") do
    out[#out + 1] = (line:gsub("%s+$", ""))
  end
  return table.concat(out, "\n")
end
`

func TestFormatByExtension(t *testing.T) {
	e, _ := newTestEngine(t, map[string]string{"md.lua": trimTrailing})

	got, err := e.Format(context.Background(), "docs/README.MD", "title   \nbody\t")
	if err != nil {
		t.Fatal(err)
	}
	if got != "title\nbody" {
		t.Fatalf("got %q", got)
	}

	if _, err := e.Format(context.Background(), "main.go", "x"); !errors.Is(err, ErrNoFormatter) {
		t.Fatalf("expected ErrNoFormatter, got %v", err)
	}
	if _, err := e.Format(context.Background(), "Makefile", "x"); !errors.Is(err, ErrNoFormatter) {
		t.Fatalf("expected ErrNoFormatter for no extension, got %v", err)
	}
}

func TestFormatTimeout(t *testing.T) {
	dir := t.TempDir()
	src := "function format(path, content) while true do end end"
	if err := os.WriteFile(filepath.Join(dir, "txt.lua"), []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	e, err := NewEngine(dir, 100*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	if _, err := e.Format(context.Background(), "a.txt", "x"); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestFormatMemoryLimit(t *testing.T) {
	dir := t.TempDir()
	src := `function format(path, content)
  local t = {}
  for i = 1, 100000000 do
    t[i] = string.rep("x", 4096) .. i
  end
  return "done"
end`
	if err := os.WriteFile(filepath.Join(dir, "txt.lua"), []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	e, err := NewEngine(dir, 30*time.Second, WithMemoryLimit(16))
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	if _, err := e.Format(context.Background(), "a.txt", "x"); !errors.Is(err, ErrMemoryLimit) {
		t.Fatalf("expected ErrMemoryLimit, got %v", err)
	}
}

func TestSandboxHidesUnsafeLibs(t *testing.T) {
	e, _ := newTestEngine(t, map[string]string{
		"txt.lua": `function format(path, content)
  if os ~= nil or io ~= nil or require ~= nil or load ~= nil then
    return "unsafe"
  end
  return scribe.path
end`,
	})

	got, err := e.Format(context.Background(), "notes/a.txt", "")
	if err != nil {
		t.Fatal(err)
	}
	if got != "notes/a.txt" {
		t.Fatalf("got %q", got)
	}
}

func TestScriptErrors(t *testing.T) {
	e, _ := newTestEngine(t, map[string]string{
		"a.lua": `function format(path, content) error("boom") end`,
		"b.lua": `function format(path, content) return 42 end`,
		"c.lua": `x = 1`,
	})

	for _, path := range []string{"f.a", "f.b", "f.c"} {
		if _, err := e.Format(context.Background(), path, ""); err == nil || errors.Is(err, ErrNoFormatter) {
			t.Fatalf("%s: err = %v", path, err)
		}
	}
	if _, err := e.Format(context.Background(), "f.a", ""); !strings.Contains(err.Error(), "boom") {
		t.Fatalf("error lost script message: %v", err)
	}
}

func TestBrokenScriptIsSkipped(t *testing.T) {
	e, _ := newTestEngine(t, map[string]string{
		"md.lua":  trimTrailing,
		"bad.lua": "function (",
	})
	if got := e.Formatters(); len(got) != 1 || got[0] != "md" {
		t.Fatalf("Formatters = %v", got)
	}
}

func TestHotReload(t *testing.T) {
	e, dir := newTestEngine(t, nil)
	if e.Has("x.css") {
		t.Fatal("unexpected formatter")
	}

	path := filepath.Join(dir, "css.lua")
	if err := os.WriteFile(path, []byte(`function format(p, c) return c:upper() end`), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		got, err := e.Format(context.Background(), "x.css", "a{}")
		return err == nil && got == "A{}"
	})

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return !e.Has("x.css") })
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
