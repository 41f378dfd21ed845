package routes

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	logging "github.com/ipfs/go-log/v2"

	"github.com/petervdpas/scribe/internal/content"
	"github.com/petervdpas/scribe/internal/editor"
	"github.com/petervdpas/scribe/internal/state"
)

var log = logging.Logger("viewer")

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 65536,
	// The editor is served from the same local server; any origin that can
	// reach it is trusted.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	clientBuffer = 64
	writeWait    = 10 * time.Second
	maxMessage   = 16 << 20
)

// Message types pushed to browsers.
const (
	MsgSnapshot  = "snapshot"
	MsgDocuments = "documents"
	MsgDocument  = "document"
	MsgSelected  = "selected"
	MsgCurrent   = "current"
	MsgResult    = "result"
)

type wsMessage struct {
	Type      string           `json:"type"`
	ClientID  string           `json:"clientId,omitempty"`
	Documents editor.Documents `json:"documents,omitempty"`
	Document  *editor.Document `json:"document,omitempty"`
	Selected  *string          `json:"selected,omitempty"`

	// result of an update sent by this client
	Path          string `json:"path,omitempty"`
	Outcome       string `json:"outcome,omitempty"`
	FailedPatches int    `json:"failed_patches,omitempty"`
}

// wsRequest is what browsers send: select, scroll or update.
type wsRequest struct {
	Type    string  `json:"type"`
	Path    string  `json:"path"`
	Content string  `json:"content"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

type wsClient struct {
	id   string
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.done) })
}

// Hub fans editor store changes out to every connected browser.
type Hub struct {
	ed  *editor.Store
	act *Activity

	mu      sync.Mutex
	clients map[string]*wsClient
	stops   []func()
}

// NewHub attaches a hub to ed. Edits made over the socket are recorded in
// act, which may be nil. Call Close to detach it and disconnect every client.
func NewHub(ed *editor.Store, act *Activity) *Hub {
	h := &Hub{ed: ed, act: act, clients: make(map[string]*wsClient)}
	h.stops = []func(){
		ed.Documents.Listen(h.onDocuments),
		ed.SelectedFile.Listen(h.onSelected),
		ed.CurrentDocument.Listen(h.onCurrent),
	}
	return h
}

func (h *Hub) onDocuments(evt state.MapEvent[editor.Document]) {
	switch evt.Type {
	case state.EventUpdate:
		doc := evt.Value
		h.broadcast(wsMessage{Type: MsgDocument, Document: &doc})
	default:
		h.broadcast(wsMessage{Type: MsgDocuments, Documents: evt.Entries})
	}
}

func (h *Hub) onSelected(path string) {
	h.broadcast(wsMessage{Type: MsgSelected, Selected: &path})
}

func (h *Hub) onCurrent(doc *editor.Document) {
	h.broadcast(wsMessage{Type: MsgCurrent, Document: doc})
}

func (h *Hub) broadcast(msg wsMessage) {
	b, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("encode %s message: %v", msg.Type, err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		select {
		case c.send <- b:
		default:
			// a client that cannot keep up would miss edits; drop it
			log.Warnf("client %s too slow, disconnecting", id)
			delete(h.clients, id)
			c.close()
		}
	}
}

// register adds a client whose first queued message is a snapshot of the
// store taken while no broadcast can interleave.
func (h *Hub) register() *wsClient {
	c := &wsClient{
		id:   uuid.NewString(),
		send: make(chan []byte, clientBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	selected := h.ed.SelectedFile.Get()
	snap, err := json.Marshal(wsMessage{
		Type:      MsgSnapshot,
		ClientID:  c.id,
		Documents: h.ed.Documents.Get(),
		Document:  h.ed.CurrentDocument.Get(),
		Selected:  &selected,
	})
	if err != nil {
		log.Errorf("encode snapshot: %v", err)
	} else {
		c.send <- snap
	}
	h.clients[c.id] = c
	return c
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	c.close()
}

func (h *Hub) sendTo(c *wsClient, msg wsMessage) {
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- b:
	case <-c.done:
	}
}

// Clients returns the number of connected browsers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close detaches from the store and disconnects every client.
func (h *Hub) Close() {
	for _, stop := range h.stops {
		stop()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		delete(h.clients, id)
		c.close()
	}
}

// ServeWS upgrades the request and streams store changes until the browser
// goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessage)

	c := h.register()
	defer h.unregister(c)
	log.Debugf("client %s connected", c.id)

	go h.readLoop(conn, c)

	for {
		select {
		case <-c.done:
			log.Debugf("client %s disconnected", c.id)
			return
		case msg := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readLoop(conn *websocket.Conn, c *wsClient) {
	defer c.close()
	for {
		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debugf("client %s read error: %v", c.id, err)
			}
			return
		}
		h.handle(c, req)
	}
}

func (h *Hub) handle(c *wsClient, req wsRequest) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("client %s: %s %q panicked: %v", c.id, req.Type, req.Path, r)
		}
	}()
	path := content.NormalizeRel(req.Path)
	switch req.Type {
	case "select":
		h.ed.SetSelectedFile(path)
	case "scroll":
		h.ed.UpdateScrollPosition(path, editor.ScrollPosition{X: req.X, Y: req.Y})
	case "update":
		res := h.ed.UpdateFile(path, req.Content)
		h.act.Record(ActUpdate, path, res.Outcome.String())
		h.sendTo(c, wsMessage{
			Type:          MsgResult,
			Path:          path,
			Outcome:       res.Outcome.String(),
			FailedPatches: res.FailedPatches,
		})
	default:
		log.Debugf("client %s sent unknown message type %q", c.id, req.Type)
	}
}
