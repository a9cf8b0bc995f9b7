package web

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/WristGo/internal/telemetry"
)

// StatusEvent is one message on the status stream: either a log line
// (Msg set) or a telemetry frame (Level "telemetry", Items set).
type StatusEvent struct {
	Time  string           `json:"t"`
	Level string           `json:"l,omitempty"`
	Msg   string           `json:"msg,omitempty"`
	Items []telemetry.Item `json:"items,omitempty"`
}

// LevelTelemetry tags events carrying a telemetry frame.
const LevelTelemetry = "telemetry"

// StatusBroadcaster fans status events out to every SSE client.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
}

func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan string]struct{}),
	}
}

// Subscribe returns a channel of JSON-encoded events and its cleanup.
// The caller must call the cleanup when the client goes away.
func (b *StatusBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Clients returns the number of subscribed clients.
func (b *StatusBroadcaster) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *StatusBroadcaster) send(evt StatusEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	payload := string(data)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
			// slow client, drop
		}
	}
}

// Broadcast sends a log line to all clients.
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	b.send(StatusEvent{
		Time:  time.Now().Format(time.RFC3339),
		Level: level,
		Msg:   msg,
	})
}

// BroadcastMsg is Broadcast at level "info".
func (b *StatusBroadcaster) BroadcastMsg(msg string) {
	b.Broadcast("info", msg)
}

// Publish sends a telemetry frame to all clients. It implements
// telemetry.Sink and never fails.
func (b *StatusBroadcaster) Publish(f telemetry.Frame) error {
	b.send(StatusEvent{
		Time:  f.Time.Format(time.RFC3339Nano),
		Level: LevelTelemetry,
		Items: f.Items,
	})
	return nil
}

// BroadcastWriter adapts the broadcaster to an io.Writer so the debug log
// can be mirrored to the browser. Each line becomes one event.
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

type broadcastWriter struct {
	b *StatusBroadcaster
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	for _, line := range strings.Split(string(p), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		level := "info"
		if strings.Contains(line, "[ERROR]") {
			level = "error"
		}
		w.b.Broadcast(level, line)
	}
	return len(p), nil
}
