// Package sse streams clustering run events to dashboard clients.
package sse

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/procluster/pkg/models"
)

const (
	// WriteTimeout is the timeout for writing to SSE clients.
	// Prevents blocking on stale connections.
	WriteTimeout = 2 * time.Second
)

// Event types sent to clients.
const (
	EventConnected = "connected"
	EventRun       = "run"
	EventError     = "error"
)

// Event is the payload of one SSE message.
type Event struct {
	Run      *models.RunSummary `json:"run,omitempty"`
	Type     string             `json:"type"`
	Source   string             `json:"source,omitempty"`
	Error    string             `json:"error,omitempty"`
	ClientID string             `json:"clientId,omitempty"`
	Labels   map[string]int     `json:"labels,omitempty"`
}

// Client represents a connected SSE client.
type Client struct {
	Writer  http.ResponseWriter
	Flusher http.Flusher
	Done    chan struct{}
	ID      string
	mu      sync.Mutex // serializes frames from Publish and HandleSSE
}

// write sends one frame and flushes it.
func (c *Client) write(frame string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeLocked(frame)
}

func (c *Client) writeLocked(frame string) error {
	if _, err := c.Writer.Write([]byte(frame)); err != nil {
		return err
	}
	c.Flusher.Flush()
	return nil
}

// frame is a formatted message and its event id.
type frame struct {
	text string
	id   uint64
}

// Broadcaster manages SSE client connections and publishes events to them.
// Every published event gets an increasing id; the latest run event is kept
// and replayed to clients connecting after it.
type Broadcaster struct {
	clients map[string]*Client
	lastRun *frame
	mu      sync.RWMutex
	nextID  int
	seq     uint64
}

// NewBroadcaster creates a new SSE broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[string]*Client),
	}
}

// AddClient adds a new SSE client connection.
func (b *Broadcaster) AddClient(w http.ResponseWriter) (*Client, error) {
	client, _, err := b.addClient(w, 0)
	if err != nil {
		return nil, err
	}
	client.mu.Unlock()
	return client, nil
}

// addClient registers w and returns the run frame it has not seen yet, if any.
// Both happen under one lock so a concurrent Publish is delivered exactly once,
// live or as the replay. The client is returned locked; published frames wait
// until the caller unlocks it.
func (b *Broadcaster) addClient(w http.ResponseWriter, seen uint64) (*Client, *frame, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, nil, fmt.Errorf("streaming not supported")
	}

	b.mu.Lock()
	b.nextID++
	id := fmt.Sprintf("client-%d", b.nextID)
	client := &Client{
		ID:      id,
		Writer:  w,
		Flusher: flusher,
		Done:    make(chan struct{}),
	}
	client.mu.Lock()
	b.clients[id] = client
	clientCount := len(b.clients)
	var replay *frame
	if b.lastRun != nil && b.lastRun.id > seen {
		replay = b.lastRun
	}
	b.mu.Unlock()

	log.Debug().
		Str("clientId", id).
		Int("totalClients", clientCount).
		Msg("SSE client connected")

	return client, replay, nil
}

// RemoveClient removes a client connection.
func (b *Broadcaster) RemoveClient(client *Client) {
	b.removeClientByID(client.ID)
}

// removeClientByID removes a client and closes its Done channel once.
func (b *Broadcaster) removeClientByID(id string) {
	b.mu.Lock()
	client, exists := b.clients[id]
	if exists {
		delete(b.clients, id)
	}
	clientCount := len(b.clients)
	b.mu.Unlock()

	if !exists {
		return
	}
	select {
	case <-client.Done:
	default:
		close(client.Done)
	}

	log.Debug().
		Str("clientId", id).
		Int("totalClients", clientCount).
		Msg("SSE client disconnected")
}

// Publish sends ev to all connected clients and returns its event id.
func (b *Broadcaster) Publish(ev Event) uint64 {
	b.mu.Lock()
	b.seq++
	id := b.seq
	text, err := formatMessage(id, ev.Type, ev)
	if err != nil {
		b.mu.Unlock()
		log.Error().Err(err).Str("type", ev.Type).Msg("Failed to marshal SSE event")
		return 0
	}
	if ev.Type == EventRun {
		b.lastRun = &frame{id: id, text: text}
	}
	clients := make([]*Client, 0, len(b.clients))
	for _, client := range b.clients {
		clients = append(clients, client)
	}
	b.mu.Unlock()

	b.send(clients, text)
	return id
}

// send writes concurrently with a timeout per client so stale connections
// cannot block the publisher. Clients that fail are removed.
func (b *Broadcaster) send(clients []*Client, text string) {
	if len(clients) == 0 {
		return
	}

	deadClientsCh := make(chan string, len(clients))
	var wg sync.WaitGroup

	for _, client := range clients {
		select {
		case <-client.Done:
			continue
		default:
			wg.Add(1)
			go func(c *Client) {
				defer wg.Done()
				b.writeToClient(c, text, deadClientsCh)
			}(client)
		}
	}

	wg.Wait()
	close(deadClientsCh)

	for clientID := range deadClientsCh {
		b.removeClientByID(clientID)
	}
}

// formatMessage renders one SSE frame. A zero id or empty name omits the line.
func formatMessage(id uint64, name string, data interface{}) (string, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	if id > 0 {
		sb.WriteString("id: " + strconv.FormatUint(id, 10) + "\n")
	}
	if name != "" {
		sb.WriteString("event: " + name + "\n")
	}
	sb.WriteString("data: ")
	sb.Write(jsonData)
	sb.WriteString("\n\n")
	return sb.String(), nil
}

// writeToClient writes a message to a single client with timeout.
func (b *Broadcaster) writeToClient(client *Client, message string, deadCh chan<- string) {
	done := make(chan struct{})

	go func() {
		defer close(done)
		if err := client.write(message); err != nil {
			log.Debug().
				Str("clientId", client.ID).
				Err(err).
				Msg("Failed to write to SSE client, marking for removal")
			deadCh <- client.ID
		}
	}()

	select {
	case <-done:
	case <-time.After(WriteTimeout):
		log.Warn().
			Str("clientId", client.ID).
			Dur("timeout", WriteTimeout).
			Msg("SSE write timed out, marking client for removal")
		deadCh <- client.ID
	case <-client.Done:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// lastEventID parses the Last-Event-ID header a reconnecting EventSource sends.
func lastEventID(r *http.Request) uint64 {
	id, err := strconv.ParseUint(strings.TrimSpace(r.Header.Get("Last-Event-ID")), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// HandleSSE streams events until the client goes away. The client first gets
// a connected greeting, then the latest run if it has not seen it.
func (b *Broadcaster) HandleSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	client, replay, err := b.addClient(w, lastEventID(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer b.RemoveClient(client)

	greeting, err := formatMessage(0, EventConnected, Event{Type: EventConnected, ClientID: client.ID})
	if err == nil {
		err = client.writeLocked(greeting)
	}
	if err == nil && replay != nil {
		err = client.writeLocked(replay.text)
	}
	client.mu.Unlock()
	if err != nil {
		log.Debug().Err(err).Str("clientId", client.ID).Msg("SSE greeting failed")
		return
	}

	select {
	case <-r.Context().Done():
	case <-client.Done:
	}
}
