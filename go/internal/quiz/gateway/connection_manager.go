package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizlive/go/internal/quiz/events"
)

// MessageHandler answers client frames and releases a connection's state when it closes.
type MessageHandler interface {
	HandleMessage(connID string, raw []byte) []byte
	Disconnect(connID string)
}

// ConnectionManager owns the websocket connections and the per-session rooms
// broadcasts are fanned out to.
type ConnectionManager struct {
	// Rooms keyed by session code
	rooms map[string]map[*Connection]bool
	conns map[string]*Connection
	mu    sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	handler  MessageHandler

	broadcastCh chan roomMessage
}

// Connection is one websocket client.
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time

	// guarded by Manager.mu
	rooms  map[string]bool
	closed bool
}

// ConnectionConfig holds configuration for websocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	QueueSize       int
	CheckOrigin     func(r *http.Request) bool
}

// roomMessage is either an event for a room or the instruction to drop it.
type roomMessage struct {
	Code  string
	Event *events.Event
	Drop  bool
}

// DefaultConnectionConfig returns default websocket configuration. The read limit
// leaves room for question uploads.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  64 * 1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		QueueSize:       1000,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

func NewConnectionManager(config ConnectionConfig, handler MessageHandler) *ConnectionManager {
	return &ConnectionManager{
		rooms: make(map[string]map[*Connection]bool),
		conns: make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		handler:     handler,
		broadcastCh: make(chan roomMessage, config.QueueSize),
	}
}

// SetHandler installs the handler; it must be called before connections are accepted.
func (cm *ConnectionManager) SetHandler(handler MessageHandler) {
	cm.handler = handler
}

// Start processes queued broadcasts until ctx is done.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return
		case message := <-cm.broadcastCh:
			if message.Drop {
				cm.dropRoom(message.Code)
				continue
			}
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP request to a websocket and starts its pumps.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: time.Now(),
		rooms:       make(map[string]bool),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("conn_id", connection.ID).
		Str("remote_addr", r.RemoteAddr).
		Msg("websocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.conns[conn.ID] = conn

	log.Debug().
		Str("conn_id", conn.ID).
		Int("total_connections", len(cm.conns)).
		Msg("connection registered")
}

// unregisterConnection removes conn from every room and tells the handler it is
// gone. Only the first call has any effect.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	if conn.closed {
		cm.mu.Unlock()
		return
	}
	conn.closed = true
	delete(cm.conns, conn.ID)
	for code := range conn.rooms {
		if members, ok := cm.rooms[code]; ok {
			delete(members, conn)
			if len(members) == 0 {
				delete(cm.rooms, code)
			}
		}
	}
	conn.rooms = nil
	close(conn.Send)
	cm.mu.Unlock()

	log.Info().
		Str("conn_id", conn.ID).
		Dur("connected_for", time.Since(conn.ConnectedAt)).
		Msg("connection unregistered")

	if cm.handler != nil {
		cm.handler.Disconnect(conn.ID)
	}
}

// Subscribe adds connID to the room of code.
func (cm *ConnectionManager) Subscribe(code, connID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	conn, ok := cm.conns[connID]
	if !ok || conn.closed {
		return
	}
	if cm.rooms[code] == nil {
		cm.rooms[code] = make(map[*Connection]bool)
	}
	cm.rooms[code][conn] = true
	conn.rooms[code] = true
}

// Unsubscribe removes connID from the room of code.
func (cm *ConnectionManager) Unsubscribe(code, connID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	conn, ok := cm.conns[connID]
	if !ok {
		return
	}
	delete(conn.rooms, code)
	if members, ok := cm.rooms[code]; ok {
		delete(members, conn)
		if len(members) == 0 {
			delete(cm.rooms, code)
		}
	}
}

// Broadcast queues event for every connection in the room of code. It never blocks.
func (cm *ConnectionManager) Broadcast(code string, event *events.Event) {
	select {
	case cm.broadcastCh <- roomMessage{Code: code, Event: event}:
	default:
		log.Warn().
			Str("session_code", code).
			Str("event_type", string(event.Type)).
			Msg("broadcast channel full, dropping message")
	}
}

// DropRoom closes the room of code once every broadcast queued before it is delivered.
func (cm *ConnectionManager) DropRoom(code string) {
	select {
	case cm.broadcastCh <- roomMessage{Code: code, Drop: true}:
	default:
		log.Warn().Str("session_code", code).Msg("broadcast channel full, dropping room immediately")
		cm.dropRoom(code)
	}
}

func (cm *ConnectionManager) dropRoom(code string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	members, ok := cm.rooms[code]
	if !ok {
		return
	}
	for conn := range members {
		delete(conn.rooms, code)
	}
	delete(cm.rooms, code)

	log.Debug().Str("session_code", code).Int("connections", len(members)).Msg("room dropped")
}

// handleBroadcast delivers one event to a room. Connections whose buffer is full
// are closed.
func (cm *ConnectionManager) handleBroadcast(message roomMessage) {
	eventData, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	var slow []*Connection
	delivered := 0

	cm.mu.RLock()
	for conn := range cm.rooms[message.Code] {
		select {
		case conn.Send <- eventData:
			delivered++
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("conn_id", conn.ID).
			Str("session_code", message.Code).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	log.Debug().
		Str("event_type", string(message.Event.Type)).
		Str("session_code", message.Code).
		Int("connections", delivered).
		Msg("event broadcasted")
}

// deliver queues a unicast frame for conn. It reports false when the frame was not queued.
func (cm *ConnectionManager) deliver(conn *Connection, data []byte) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if conn.closed {
		return false
	}
	select {
	case conn.Send <- data:
		return true
	default:
		log.Warn().Str("conn_id", conn.ID).Msg("connection send buffer full, dropping reply")
		return false
	}
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.conns))
	for _, c := range cm.conns {
		conns = append(conns, c)
	}
	cm.mu.RUnlock()

	for _, c := range conns {
		c.Conn.Close()
	}
}

// ConnectionStats summarizes the manager's connections and rooms.
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveRooms      int            `json:"active_rooms"`
	RoomConnections  map[string]int `json:"room_connections"`
}

func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	counts := make(map[string]int, len(cm.rooms))
	for code, members := range cm.rooms {
		counts[code] = len(members)
	}
	return ConnectionStats{
		TotalConnections: len(cm.conns),
		ActiveRooms:      len(cm.rooms),
		RoomConnections:  counts,
	}
}

// writePump handles sending messages to the websocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("conn_id", c.ID).
					Msg("failed to write message to websocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("conn_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading client frames; each gets exactly one reply.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("conn_id", c.ID).
					Msg("unexpected websocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

func (c *Connection) handleClientMessage(message []byte) {
	if c.Manager.handler == nil {
		return
	}
	reply := c.Manager.handler.HandleMessage(c.ID, message)
	c.Manager.deliver(c, reply)
}
