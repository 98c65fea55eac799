package ws

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"phantom-mask/internal/model"

	"github.com/gofiber/contrib/websocket"
)

// Hub fans purchase events out to every connected websocket client
type Hub struct {
	Clients    map[*websocket.Conn]bool
	Register   chan *websocket.Conn
	Unregister chan *websocket.Conn
	Broadcast  chan []byte
	mutex      sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		Clients:    make(map[*websocket.Conn]bool),
		Register:   make(chan *websocket.Conn),
		Unregister: make(chan *websocket.Conn),
		Broadcast:  make(chan []byte, 64),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.Register:
			h.mutex.Lock()
			h.Clients[conn] = true
			h.mutex.Unlock()
			log.Println("ws: client connected")

		case conn := <-h.Unregister:
			h.mutex.Lock()
			if _, ok := h.Clients[conn]; ok {
				delete(h.Clients, conn)
				conn.Close()
			}
			h.mutex.Unlock()

		case message := <-h.Broadcast:
			h.mutex.Lock()
			for conn := range h.Clients {
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					conn.Close()
					delete(h.Clients, conn)
				}
			}
			h.mutex.Unlock()
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.Clients)
}

// PurchaseEvent builds the message sent after a purchase commits
func PurchaseEvent(t *model.PurchaseTransaction, stockLeft int, buyerName string) ([]byte, error) {
	payload := map[string]interface{}{
		"type":   "stock_update",
		"action": "purchase_completed",
		"transaction": map[string]interface{}{
			"id":           t.ID,
			"pharmacy_id":  t.PharmacyID,
			"mask_id":      t.MaskID,
			"mask_name":    t.MaskName,
			"amount":       t.Amount,
			"purchased_at": t.PurchasedAt,
		},
		"mask": map[string]interface{}{
			"id":    t.MaskID,
			"stock": stockLeft,
		},
		"user": map[string]interface{}{
			"id":   t.UserID,
			"name": buyerName,
		},
		"message": fmt.Sprintf("%s bought %s", buyerName, t.MaskName),
	}
	return json.Marshal(payload)
}

// PurchaseCompleted queues the event in commit order without blocking the caller.
// When the broadcast buffer is full the event is dropped.
func (h *Hub) PurchaseCompleted(t *model.PurchaseTransaction, stockLeft int, buyerName string) {
	msg, err := PurchaseEvent(t, stockLeft, buyerName)
	if err != nil {
		log.Printf("ws: encode purchase event: %v", err)
		return
	}
	select {
	case h.Broadcast <- msg:
	default:
		log.Printf("ws: broadcast buffer full, dropped event for transaction %s", t.ID)
	}
}
