package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"expiry-server/middleware"
	"expiry-server/models"
	"expiry-server/store"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // single-household server, UI may load from anywhere on the LAN
	},
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 * 1024
)

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string
}

// Hub fans server events out to every connected UI client: product-list
// snapshots, fired notifications, and ringing alarms.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	store      *store.Store
	mu         sync.RWMutex
}

func NewHub(s *store.Store) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		store:      s,
	}
}

func (h *Hub) Run() {
	log.Printf("[WS HUB] Hub started and running")
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mu.Unlock()
			log.Printf("[WS HUB] Client registered: %s (total clients: %d)", client.userID, clientCount)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			clientCount := len(h.clients)
			h.mu.Unlock()
			log.Printf("[WS HUB] Client unregistered: %s (total clients: %d)", client.userID, clientCount)

		case message := <-h.broadcast:
			var staleClients []*Client
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					log.Printf("[WS HUB] Client %s buffer full - marking as stale", client.userID)
					staleClients = append(staleClients, client)
				}
			}
			h.mu.RUnlock()

			if len(staleClients) > 0 {
				h.mu.Lock()
				for _, client := range staleClients {
					if _, ok := h.clients[client]; ok {
						close(client.send)
						delete(h.clients, client)
					}
				}
				h.mu.Unlock()
			}
		}
	}
}

// WatchProducts forwards every product-list snapshot from the store to the
// connected clients. Runs until the store subscription is closed.
func (h *Hub) WatchProducts() {
	snapshots, cancel := h.store.Watch()
	defer cancel()

	for products := range snapshots {
		h.BroadcastAll(models.WSMessage{
			Type:    models.WSTypeProductList,
			Payload: products,
		})
	}
}

func (h *Hub) BroadcastAll(msg models.WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[WS HUB] BroadcastAll marshal error for type '%s': %v", msg.Type, err)
		return
	}
	h.broadcast <- data
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Get token from query parameter (websocket clients cannot set headers)
	token := r.URL.Query().Get("token")
	if token == "" {
		log.Printf("[WS] Connection rejected - no token provided from %s", r.RemoteAddr)
		http.Error(w, "Token required", http.StatusUnauthorized)
		return
	}

	claims, err := middleware.ValidateToken(token)
	if err != nil {
		log.Printf("[WS] Connection rejected - invalid token from %s", r.RemoteAddr)
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] Upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 64),
		userID: claims.UserID,
	}

	h.register <- client

	// The first message a client sees is the current product list, so the
	// UI can render without a separate fetch.
	if products, err := h.store.ListProducts(); err == nil {
		if products == nil {
			products = []models.Product{}
		}
		if data, err := json.Marshal(models.WSMessage{Type: models.WSTypeProductList, Payload: products}); err == nil {
			client.send <- data
		}
	}

	go client.writePump()
	go client.readPump()
}

// readPump discards client frames; the websocket is a push channel, all
// client actions go through the HTTP API.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WS] Read error for %s: %v", c.userID, err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
