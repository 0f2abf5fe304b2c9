package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/danghamo/deskd/internal/api/jsonrpcx"
	"github.com/danghamo/deskd/pkg/logger"
)

// Client represents a connected SSE client
type Client struct {
	ID       string
	Writer   http.ResponseWriter
	Flusher  http.Flusher
	Done     chan bool
	LastSeen time.Time
	mutex    sync.Mutex // Protects concurrent writes to this client
}

// Broadcaster fans JSON-RPC notifications out to all connected SSE clients.
// The daemon serves a single local user, so there is no per-user targeting:
// every desk notification goes to every connected client.
type Broadcaster struct {
	logger    *logger.Logger
	clients   map[string]*Client
	mutex     sync.RWMutex
	broadcast chan []byte
	cleanup   *time.Ticker
	shutdown  chan struct{}
}

// NewBroadcaster creates a broadcaster and starts its background loops
func NewBroadcaster(log *logger.Logger) *Broadcaster {
	b := &Broadcaster{
		logger:    log.WithComponent("sse-broadcaster"),
		clients:   make(map[string]*Client),
		broadcast: make(chan []byte, 256),
		cleanup:   time.NewTicker(30 * time.Second),
		shutdown:  make(chan struct{}),
	}

	go b.broadcastLoop()
	go b.cleanupLoop()

	return b
}

// AddClient adds a new SSE client
func (b *Broadcaster) AddClient(client *Client) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.clients[client.ID] = client

	b.logger.Debug("SSE client connected", zap.String("client_id", client.ID))
}

// RemoveClient removes an SSE client
func (b *Broadcaster) RemoveClient(clientID string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	client, exists := b.clients[clientID]
	if !exists {
		return
	}

	select {
	case <-client.Done:
		// Channel already closed
	default:
		close(client.Done)
	}
	delete(b.clients, clientID)

	b.logger.Debug("SSE client disconnected", zap.String("client_id", clientID))
}

// BroadcastToAll sends a JSON-RPC notification to all connected clients
func (b *Broadcaster) BroadcastToAll(notification jsonrpcx.Notification) {
	data, err := json.Marshal(notification)
	if err != nil {
		b.logger.Error("Failed to marshal JSON-RPC notification", zap.Error(err))
		return
	}

	select {
	case b.broadcast <- data:
	default:
		b.logger.Warn("Broadcast channel full, dropping message")
	}
}

// GetClientCount returns the number of connected clients
func (b *Broadcaster) GetClientCount() int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return len(b.clients)
}

// Close shuts down the broadcaster and disconnects all clients
func (b *Broadcaster) Close() {
	b.logger.Debug("Shutting down SSE broadcaster")

	close(b.shutdown)
	b.cleanup.Stop()

	b.mutex.Lock()
	defer b.mutex.Unlock()

	for clientID, client := range b.clients {
		select {
		case <-client.Done:
		default:
			close(client.Done)
		}
		delete(b.clients, clientID)
	}

	b.logger.Debug("SSE broadcaster shutdown complete")
}

// broadcastLoop delivers queued notifications to every connected client
func (b *Broadcaster) broadcastLoop() {
	for {
		select {
		case <-b.shutdown:
			return
		case data := <-b.broadcast:
			b.mutex.RLock()
			clients := make([]*Client, 0, len(b.clients))
			for _, client := range b.clients {
				clients = append(clients, client)
			}
			b.mutex.RUnlock()

			for _, client := range clients {
				select {
				case <-client.Done:
					b.RemoveClient(client.ID)
				default:
					if err := b.sendToClient(client, data); err != nil {
						b.logger.Warn("Failed to send to client",
							zap.String("client_id", client.ID),
							zap.Error(err))
						b.RemoveClient(client.ID)
					}
				}
			}
		}
	}
}

// sendToClient writes one SSE frame to a client
func (b *Broadcaster) sendToClient(client *Client, data []byte) error {
	if client.Writer == nil || client.Flusher == nil {
		return fmt.Errorf("client %s has no writer", client.ID)
	}

	client.mutex.Lock()
	defer client.mutex.Unlock()

	select {
	case <-client.Done:
		return fmt.Errorf("client connection closed")
	default:
	}

	if _, err := fmt.Fprintf(client.Writer, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}

	client.Flusher.Flush()
	client.LastSeen = time.Now()
	return nil
}

// cleanupLoop removes connections that have not taken a write in a while
func (b *Broadcaster) cleanupLoop() {
	for {
		select {
		case <-b.shutdown:
			return
		case <-b.cleanup.C:
			b.mutex.Lock()
			now := time.Now()
			for clientID, client := range b.clients {
				if now.Sub(client.LastSeen) > 2*time.Minute {
					b.logger.Debug("Removing stale SSE client",
						zap.String("client_id", clientID))
					select {
					case <-client.Done:
					default:
						close(client.Done)
					}
					delete(b.clients, clientID)
				}
			}
			b.mutex.Unlock()
		}
	}
}

// HandleSSE upgrades the request to an event stream and blocks until the
// client goes away or the broadcaster shuts down
func (b *Broadcaster) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		b.logger.Error("SSE client does not support streaming")
		http.Error(w, "Server-Sent Events not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("X-Accel-Buffering", "no")

	client := &Client{
		ID:       uuid.New().String(),
		Writer:   w,
		Flusher:  flusher,
		Done:     make(chan bool),
		LastSeen: time.Now(),
	}

	b.AddClient(client)
	defer b.RemoveClient(client.ID)

	// Initial frame so clients know the stream is live
	fmt.Fprintf(w, "data: {\"type\":\"connected\",\"client_id\":%q}\n\n", client.ID)
	flusher.Flush()

	heartbeat := time.NewTicker(25 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-client.Done:
			return
		case <-b.shutdown:
			return
		case <-heartbeat.C:
			client.mutex.Lock()
			_, err := fmt.Fprint(w, ": heartbeat\n\n")
			if err == nil {
				flusher.Flush()
				client.LastSeen = time.Now()
			}
			client.mutex.Unlock()
			if err != nil {
				return
			}
		}
	}
}
