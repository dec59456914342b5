package handlers

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"dice-prediction-backend/internal/logging"
	"dice-prediction-backend/internal/models"
	"dice-prediction-backend/internal/services"
)

const (
	MessageRoundUpdate      = "ROUND_UPDATE"
	MessageHistoryRefreshed = "HISTORY_REFRESHED"
	MessagePing             = "PING"
	MessagePong             = "PONG"

	writeWait = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// RoundReader exposes the round state pushed to new connections.
type RoundReader interface {
	Round() models.GameRound
}

type Message struct {
	Type    string      `json:"type"`
	Address string      `json:"address,omitempty"`
	Data    interface{} `json:"data"`
}

type Client struct {
	Address string
	Conn    *websocket.Conn

	mu sync.Mutex
}

// WriteJSON serialises writes; gorilla connections allow one writer at a time.
func (c *Client) WriteJSON(msg *Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Conn.WriteJSON(msg)
}

// WebSocketHub fans round and history events out to the connections of
// each player. It implements services.Broadcaster.
type WebSocketHub struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	done       chan struct{}
	closeOnce  sync.Once
	logger     zerolog.Logger
}

var _ services.Broadcaster = (*WebSocketHub)(nil)

func NewWebSocketHub(logger zerolog.Logger) *WebSocketHub {
	hub := &WebSocketHub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 100),
		done:       make(chan struct{}),
		logger:     logging.Component(logger, "websocket"),
	}

	go hub.run()

	return hub
}

func (hub *WebSocketHub) Close() {
	hub.closeOnce.Do(func() {
		close(hub.done)
	})
}

func (hub *WebSocketHub) RoundChanged(address string, round models.GameRound) {
	hub.publish(&Message{
		Type:    MessageRoundUpdate,
		Address: address,
		Data:    round,
	})
}

func (hub *WebSocketHub) HistoryRefreshed(address string, totalGames int) {
	hub.publish(&Message{
		Type:    MessageHistoryRefreshed,
		Address: address,
		Data: gin.H{
			"total_games": totalGames,
			"timestamp":   time.Now().Unix(),
		},
	})
}

// publish never blocks the caller; frames are dropped when the queue is full.
func (hub *WebSocketHub) publish(msg *Message) {
	select {
	case hub.broadcast <- msg:
	case <-hub.done:
	default:
		hub.logger.Warn().Str("type", msg.Type).Str("player", msg.Address).Msg("broadcast queue full, dropping frame")
	}
}

func (hub *WebSocketHub) run() {
	for {
		select {
		case client := <-hub.register:
			key := strings.ToLower(client.Address)
			if hub.clients[key] == nil {
				hub.clients[key] = make(map[*Client]struct{})
			}
			hub.clients[key][client] = struct{}{}
			hub.logger.Debug().Str("player", client.Address).Msg("client registered")

		case client := <-hub.unregister:
			key := strings.ToLower(client.Address)
			if set, ok := hub.clients[key]; ok {
				delete(set, client)
				if len(set) == 0 {
					delete(hub.clients, key)
				}
				hub.logger.Debug().Str("player", client.Address).Msg("client unregistered")
			}

		case message := <-hub.broadcast:
			hub.broadcastMessage(message)

		case <-hub.done:
			return
		}
	}
}

func (hub *WebSocketHub) broadcastMessage(message *Message) {
	if message.Address != "" {
		for client := range hub.clients[strings.ToLower(message.Address)] {
			hub.write(client, message)
		}
		return
	}
	for _, set := range hub.clients {
		for client := range set {
			hub.write(client, message)
		}
	}
}

func (hub *WebSocketHub) write(client *Client, message *Message) {
	if err := client.WriteJSON(message); err != nil {
		hub.logger.Debug().Err(err).Str("player", client.Address).Msg("websocket write failed")
	}
}

type WebSocketHandler struct {
	hub    *WebSocketHub
	rounds RoundReader
}

func NewWebSocketHandler(hub *WebSocketHub, rounds RoundReader) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    hub,
		rounds: rounds,
	}
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	address := c.GetString("address")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.hub.logger.Warn().Err(err).Msg("failed to upgrade to websocket")
		return
	}

	client := &Client{
		Address: address,
		Conn:    conn,
	}

	select {
	case h.hub.register <- client:
	case <-h.hub.done:
		conn.Close()
		return
	}

	defer func() {
		select {
		case h.hub.unregister <- client:
		case <-h.hub.done:
		}
		conn.Close()
	}()

	h.sendRound(client)

	for {
		var msg Message
		err := conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.hub.logger.Debug().Err(err).Str("player", address).Msg("websocket closed")
			}
			break
		}

		h.handleMessage(client, &msg)
	}
}

func (h *WebSocketHandler) handleMessage(client *Client, msg *Message) {
	switch msg.Type {
	case MessagePing:
		h.sendPong(client)
	case MessageRoundUpdate:
		h.sendRound(client)
	}
}

// sendRound pushes the current round to a freshly connected client.
func (h *WebSocketHandler) sendRound(client *Client) {
	round := h.rounds.Round()
	h.hub.write(client, &Message{
		Type:    MessageRoundUpdate,
		Address: client.Address,
		Data:    round,
	})
}

func (h *WebSocketHandler) sendPong(client *Client) {
	h.hub.write(client, &Message{
		Type: MessagePong,
		Data: gin.H{
			"timestamp": time.Now().Unix(),
		},
	})
}
