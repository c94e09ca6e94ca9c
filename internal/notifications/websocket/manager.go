package websocket

import (
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Message is one frame pushed to subscribed clients when an entity changes
// status.
type Message struct {
	Type       string                 `json:"type"`
	EntityType string                 `json:"entity_type,omitempty"`
	EntityID   string                 `json:"entity_id,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

const (
	MessageTypeStatusChanged = "status_changed"
	MessageTypeConnected     = "connected"
)

// Manager handles WebSocket connections and status-event fan-out.
type Manager struct {
	connections map[string]*Connection
	mu          sync.RWMutex
	hub         *hub
	upgrader    websocket.Upgrader
}

// Connection represents one subscribed client.
type Connection struct {
	ID           string
	Subscriber   string
	Conn         *websocket.Conn
	Send         chan Message
	LastActivity time.Time
	mu           sync.Mutex
}

type hub struct {
	connections map[*Connection]bool
	broadcast   chan Message
	register    chan *Connection
	unregister  chan *Connection
	stop        chan struct{}
}

func NewManager() *Manager {
	h := &hub{
		connections: make(map[*Connection]bool),
		broadcast:   make(chan Message, 256),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		stop:        make(chan struct{}),
	}

	go h.run()

	return &Manager{
		connections: make(map[string]*Connection),
		hub:         h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// In production, implement proper origin checking
				return true
			},
		},
	}
}

// HandleConnection upgrades an HTTP request and registers the client with the
// hub.
func (m *Manager) HandleConnection(w http.ResponseWriter, r *http.Request) (*Connection, error) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}

	subscriber := r.Header.Get("X-Subscriber-ID")
	if subscriber == "" {
		subscriber = uuid.New().String()
	}

	connection := &Connection{
		ID:           uuid.New().String(),
		Subscriber:   subscriber,
		Conn:         conn,
		Send:         make(chan Message, 256),
		LastActivity: time.Now(),
	}

	select {
	case m.hub.register <- connection:
	case <-m.hub.stop:
		conn.Close()
		return nil, errors.New("websocket manager is shut down")
	}

	m.mu.Lock()
	m.connections[connection.ID] = connection
	m.mu.Unlock()

	go m.readPump(connection)
	go m.writePump(connection)

	connection.Send <- Message{
		Type:      MessageTypeConnected,
		Data:      map[string]interface{}{"connection_id": connection.ID},
		Timestamp: time.Now(),
	}

	return connection, nil
}

// Broadcast fans a message out to every connected client. Non-blocking: a
// full hub queue drops the frame rather than stalling the caller.
func (m *Manager) Broadcast(msg Message) {
	select {
	case m.hub.broadcast <- msg:
	default:
		log.Printf("websocket broadcast queue full, dropping %s frame", msg.Type)
	}
}

// ConnectionCount returns the number of currently registered clients.
func (m *Manager) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// Close shuts the hub down and closes every client connection.
func (m *Manager) Close() {
	close(m.hub.stop)

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, conn := range m.connections {
		conn.Conn.Close()
		delete(m.connections, id)
	}
}

// dropConnection hands a dead connection back to the hub. Selecting on stop
// keeps late pump exits from blocking once the hub loop has returned.
func (m *Manager) dropConnection(conn *Connection) {
	select {
	case m.hub.unregister <- conn:
	case <-m.hub.stop:
	}

	m.mu.Lock()
	delete(m.connections, conn.ID)
	m.mu.Unlock()
}

func (m *Manager) readPump(conn *Connection) {
	defer func() {
		conn.Conn.Close()
		m.dropConnection(conn)
	}()

	conn.Conn.SetReadLimit(512)
	conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		var msg Message
		if err := conn.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket read error: %v", err)
			}
			break
		}

		conn.mu.Lock()
		conn.LastActivity = time.Now()
		conn.mu.Unlock()
	}
}

func (m *Manager) writePump(conn *Connection) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.Conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.connections[conn] = true

		case conn := <-h.unregister:
			if _, ok := h.connections[conn]; ok {
				delete(h.connections, conn)
				close(conn.Send)
			}

		case msg := <-h.broadcast:
			for conn := range h.connections {
				select {
				case conn.Send <- msg:
				default:
					// Slow consumer, drop it.
					delete(h.connections, conn)
					close(conn.Send)
				}
			}

		case <-h.stop:
			return
		}
	}
}
