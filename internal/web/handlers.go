package web

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cjeanneret/WristGo/internal/debug"
	"github.com/cjeanneret/WristGo/internal/hw/gamepad"
)

// Settings is the read-only view of the wrist and teleop configuration
// served on GET /config.
type Settings struct {
	Mapping      string  `json:"mapping"`
	Scale        float64 `json:"scale"`
	Step         float64 `json:"step"`
	PeriodMs     int     `json:"period_ms"`
	AngleAxis    string  `json:"angle_axis"`
	TiltAxis     string  `json:"tilt_axis"`
	ResetButton  string  `json:"reset_button"`
	StartButton  string  `json:"start_button"`
	WaitForStart bool    `json:"wait_for_start"`
	AuthRequired bool    `json:"auth_required"`
}

var errControllerBusy = errors.New("another controller is connected")

// controlLock admits a single remote controller at a time.
type controlLock struct {
	mu    sync.Mutex
	inuse bool
}

func (l *controlLock) acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inuse {
		return errControllerBusy
	}
	l.inuse = true
	return nil
}

func (l *controlLock) release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inuse = false
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Pad         *gamepad.Virtual
	Settings    Settings

	control  controlLock
	upgrader websocket.Upgrader

	startOnce sync.Once
	start     chan struct{}

	staticFS fs.FS
}

func NewHandlers(broadcaster *StatusBroadcaster, pad *gamepad.Virtual, settings Settings, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Pad:         pad,
		Settings:    settings,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		start:    make(chan struct{}),
		staticFS: staticFS,
	}
}

// Started is closed by the first POST /start.
func (h *Handlers) Started() <-chan struct{} {
	return h.start
}

// HandleConfig returns the wrist and teleop settings as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Settings)
}

// ServeIndex serves the controller page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleStart handles POST /start. Repeated calls are accepted and do nothing.
func (h *Handlers) HandleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := "already started"
	h.startOnce.Do(func() {
		close(h.start)
		status = "started"
		debug.Info("Start requested from %s", r.RemoteAddr)
		h.Broadcaster.BroadcastMsg("Teleop started")
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

// HandleControl upgrades GET /control to a websocket carrying gamepad
// state as JSON. Only one controller may be connected; others get 409.
// The pad is released when the controller disconnects.
func (h *Handlers) HandleControl(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Cache-Control", "no-cache")
	if err := h.control.acquire(); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	defer h.control.release()

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		debug.Error(err)
		return
	}
	defer ws.Close()
	defer h.Pad.Release()

	debug.Info("Controller connected from %s", r.RemoteAddr)
	h.Broadcaster.BroadcastMsg("Controller connected")
	for {
		var s gamepad.State
		if err := ws.ReadJSON(&s); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				debug.Verbose("Control socket read: %v", err)
			}
			break
		}
		h.Pad.Set(s)
	}
	debug.Info("Controller disconnected")
	h.Broadcaster.BroadcastMsg("Controller disconnected")
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
