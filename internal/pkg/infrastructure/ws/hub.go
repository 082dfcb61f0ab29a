package ws

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/diwise/monitoring-gasdetector/domain"
)

type broadcastMsg struct {
	serialNumber string
	data         []byte
}

// Hub fans live session updates out to connected websocket clients.
// Each client watches a single device and only receives updates for
// it. The hub implements session.Listener.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan broadcastMsg
	register   chan *Client
	unregister chan *Client
	log        zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    map[*Client]bool{},
		broadcast:  make(chan broadcastMsg, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        log,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}

		case msg := <-h.broadcast:
			for client := range h.clients {
				if client.serialNumber != msg.serialNumber {
					continue
				}

				select {
				case client.send <- msg.data:
				default:
					// slow consumer, drop it rather than stall
					delete(h.clients, client)
					close(client.send)
				}
			}
		}
	}
}

func (h *Hub) ReadingAccepted(serialNumber string, r domain.Reading) {
	h.send(serialNumber, "reading", r)
}

func (h *Hub) IndicatorChanged(serialNumber string, ind domain.Indicator) {
	h.send(serialNumber, "indicator", ind)
}

func (h *Hub) send(serialNumber, msgType string, payload any) {
	data, err := json.Marshal(map[string]any{
		"type":    msgType,
		"serial":  serialNumber,
		"payload": payload,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("failed to marshal websocket update")
		return
	}

	// never block ingestion on slow websocket consumers
	select {
	case h.broadcast <- broadcastMsg{serialNumber: serialNumber, data: data}:
	default:
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ServeWS upgrades an http request to a websocket subscription for one
// device's live updates.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, serialNumber string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		hub:          h,
		conn:         conn,
		serialNumber: serialNumber,
		send:         make(chan []byte, 256),
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}
