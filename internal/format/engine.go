// Package format runs user-provided Lua formatters. A script named
// <ext>.lua in the script directory formats files with that extension by
// defining format(path, content) and returning the new text.
package format

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	logging "github.com/ipfs/go-log/v2"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

var log = logging.Logger("format")

var (
	ErrNoFormatter = errors.New("no formatter for file type")
	ErrTimeout     = errors.New("formatter timed out")
	ErrMemoryLimit = errors.New("formatter exceeded its memory limit")
)

const (
	entryPoint       = "format"
	memCheckInterval = 50 * time.Millisecond
)

// Engine holds compiled formatter scripts keyed by file extension and
// recompiles them when they change on disk.
type Engine struct {
	mu      sync.RWMutex
	scripts map[string]*lua.FunctionProto // extension without dot -> script
	dir     string
	timeout time.Duration
	maxMB   int
	watcher *fsnotify.Watcher
	closed  chan struct{}
}

type Option func(*Engine)

// WithMemoryLimit stops a script once process memory grows by more than mb
// megabytes during its run. Zero disables the check.
func WithMemoryLimit(mb int) Option {
	return func(e *Engine) { e.maxMB = mb }
}

// NewEngine compiles every script in dir and starts watching it. The
// directory is created if needed.
func NewEngine(dir string, timeout time.Duration, opts ...Option) (*Engine, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create dir %s: %w", dir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	e := &Engine{
		scripts: make(map[string]*lua.FunctionProto),
		dir:     dir,
		timeout: timeout,
		watcher: watcher,
		closed:  make(chan struct{}),
	}
	for _, o := range opts {
		o(e)
	}
	e.scanDir()

	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch script dir: %w", err)
	}
	go e.watchLoop()

	log.Infof("engine started, %d formatter(s) loaded from %s", len(e.scripts), dir)
	return e, nil
}

func (e *Engine) scanDir() {
	entries, err := os.ReadDir(e.dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".lua") {
			continue
		}
		if err := e.compileScript(filepath.Join(e.dir, entry.Name())); err != nil {
			log.Warnf("failed to compile %s: %v", entry.Name(), err)
		}
	}
}

func (e *Engine) compileScript(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	name := scriptName(path)

	chunk, err := parse.Parse(strings.NewReader(string(data)), name)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return fmt.Errorf("compile: %w", err)
	}

	e.mu.Lock()
	e.scripts[name] = proto
	e.mu.Unlock()
	log.Debugf("compiled formatter %q", name)
	return nil
}

func (e *Engine) removeScript(name string) {
	e.mu.Lock()
	delete(e.scripts, name)
	e.mu.Unlock()
	log.Debugf("removed formatter %q", name)
}

func (e *Engine) watchLoop() {
	for {
		select {
		case <-e.closed:
			return
		case event, ok := <-e.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".lua") {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				if err := e.compileScript(event.Name); err != nil {
					log.Warnf("hot reload failed for %s: %v", filepath.Base(event.Name), err)
				}
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				e.removeScript(scriptName(event.Name))
			}
		case err, ok := <-e.watcher.Errors:
			if !ok {
				return
			}
			log.Warnf("watcher error: %v", err)
		}
	}
}

// Formatters lists the extensions that currently have a script.
func (e *Engine) Formatters() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.scripts))
	for name := range e.scripts {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Has reports whether a formatter exists for path.
func (e *Engine) Has(path string) bool {
	_, ok := e.lookup(path)
	return ok
}

func (e *Engine) lookup(path string) (*lua.FunctionProto, bool) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext == "" {
		return nil, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	proto, ok := e.scripts[ext]
	return proto, ok
}

// Format runs the formatter for path over text. It returns ErrNoFormatter
// when no script handles the extension and ErrTimeout when the script does
// not finish in time.
func (e *Engine) Format(ctx context.Context, path, text string) (string, error) {
	proto, ok := e.lookup(path)
	if !ok {
		return "", ErrNoFormatter
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	ctx, kill := context.WithCancel(ctx)
	defer kill()
	mon := newMemoryMonitor(e.maxMB, memCheckInterval)
	defer mon.watch(ctx, path, kill)()

	L := newSandboxedVM(path)
	defer L.Close()
	L.SetContext(ctx)

	L.Push(L.NewFunctionFromProto(proto))
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		return "", e.callError(ctx, mon, "load script", err)
	}

	fn := L.GetGlobal(entryPoint)
	if fn.Type() != lua.LTFunction {
		return "", fmt.Errorf("script for %s has no %s() function", filepath.Ext(path), entryPoint)
	}

	if err := L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, lua.LString(path), lua.LString(text)); err != nil {
		return "", e.callError(ctx, mon, entryPoint, err)
	}
	ret := L.Get(-1)
	L.Pop(1)

	s, ok := ret.(lua.LString)
	if !ok {
		return "", fmt.Errorf("%s() returned %s, want string", entryPoint, ret.Type())
	}
	return string(s), nil
}

func (e *Engine) callError(ctx context.Context, mon *memoryMonitor, stage string, err error) error {
	if mon.wasExceeded() {
		return ErrMemoryLimit
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%s: %w", stage, err)
}

// Close stops watching the script directory.
func (e *Engine) Close() {
	close(e.closed)
	e.watcher.Close()
	log.Infof("engine stopped")
}

func scriptName(path string) string {
	return strings.ToLower(strings.TrimSuffix(filepath.Base(path), ".lua"))
}
