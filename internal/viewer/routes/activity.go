package routes

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/petervdpas/scribe/internal/util"
)

// Activity kinds.
const (
	ActUpdate = "update"
	ActSave   = "save"
	ActFormat = "format"
	ActLock   = "lock"
	ActUnlock = "unlock"
	ActCreate = "create"
	ActDelete = "delete"
	ActRename = "rename"
)

type ActivityEntry struct {
	TS     time.Time `json:"ts"`
	Kind   string    `json:"kind"`
	Path   string    `json:"path"`
	Detail string    `json:"detail,omitempty"`
}

// Activity keeps the most recent editor actions and fans them out to live
// subscribers. A nil *Activity records nothing.
type Activity struct {
	mu      sync.Mutex
	entries *util.RingBuffer[ActivityEntry]
	subs    map[chan ActivityEntry]struct{}
}

func NewActivity(max int) *Activity {
	if max <= 0 {
		max = 500
	}
	return &Activity{
		entries: util.NewRingBuffer[ActivityEntry](max),
		subs:    make(map[chan ActivityEntry]struct{}),
	}
}

func (a *Activity) Record(kind, path, detail string) {
	if a == nil {
		return
	}
	e := ActivityEntry{TS: time.Now().UTC(), Kind: kind, Path: path, Detail: detail}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries.Push(e)
	for ch := range a.subs {
		select {
		case ch <- e:
		default:
			// drop on slow subscriber
		}
	}
}

// Recent returns up to limit entries, oldest first. limit <= 0 returns all.
func (a *Activity) Recent(limit int) []ActivityEntry {
	if a == nil {
		return nil
	}
	return a.entries.Last(limit)
}

func (a *Activity) Subscribe() (ch chan ActivityEntry, cancel func()) {
	ch = make(chan ActivityEntry, 64)

	a.mu.Lock()
	a.subs[ch] = struct{}{}
	a.mu.Unlock()

	cancel = func() {
		a.mu.Lock()
		if _, ok := a.subs[ch]; ok {
			delete(a.subs, ch)
			close(ch)
		}
		a.mu.Unlock()
	}
	return ch, cancel
}

// RegisterActivity exposes the feed. Nothing is mounted when d.Activity is nil.
func RegisterActivity(mux *http.ServeMux, d Deps) {
	act := d.Activity
	if act == nil {
		return
	}

	// GET /api/activity?limit=N
	handleGet(mux, "/api/activity", func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				http.Error(w, "bad limit", http.StatusBadRequest)
				return
			}
			limit = n
		}
		out := act.Recent(limit)
		if out == nil {
			out = []ActivityEntry{}
		}
		writeJSON(w, out)
	})

	// GET /api/activity/stream (Server-Sent Events), tail only
	handleGet(mux, "/api/activity/stream", func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		ch, cancel := act.Subscribe()
		defer cancel()

		w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		for {
			select {
			case <-r.Context().Done():
				return
			case e, ok := <-ch:
				if !ok {
					return
				}
				writeSSE(w, e)
				flusher.Flush()
			}
		}
	})
}

func writeSSE(w http.ResponseWriter, e ActivityEntry) {
	b, _ := json.Marshal(e)
	_, _ = w.Write([]byte("event: " + e.Kind + "\n"))
	_, _ = w.Write([]byte("data: " + string(b) + "\n\n"))
}
