package controller

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	"funnelcrm/models"
)

type hubClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Hub fans notifications out to the websocket connections of each user.
type Hub struct {
	mu      sync.RWMutex
	clients map[uint]map[*hubClient]struct{}
	log     *logrus.Entry
}

func NewHub(log *logrus.Entry) *Hub {
	return &Hub{clients: make(map[uint]map[*hubClient]struct{}), log: log}
}

// Push sends n to every open connection of userID. Slow or dead connections
// are dropped.
func (h *Hub) Push(userID uint, n models.Notification) {
	h.mu.RLock()
	clients := make([]*hubClient, 0, len(h.clients[userID]))
	for cl := range h.clients[userID] {
		clients = append(clients, cl)
	}
	h.mu.RUnlock()

	for _, cl := range clients {
		cl.mu.Lock()
		err := cl.conn.WriteJSON(fiber.Map{"type": "notification", "data": n})
		cl.mu.Unlock()
		if err != nil {
			h.log.WithError(err).WithField("user_id", userID).Debug("Dropping websocket client")
			h.remove(userID, cl)
			_ = cl.conn.Close()
		}
	}
}

// Connected reports how many connections userID has open.
func (h *Hub) Connected(userID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) add(userID uint, cl *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*hubClient]struct{})
	}
	h.clients[userID][cl] = struct{}{}
}

func (h *Hub) remove(userID uint, cl *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients[userID], cl)
	if len(h.clients[userID]) == 0 {
		delete(h.clients, userID)
	}
}

// Upgrade rejects plain HTTP requests on the websocket route.
func (h *Hub) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Handle serves /ws/notifications. The user id is set by the auth
// middleware before the upgrade.
func (h *Hub) Handle(conn *websocket.Conn) {
	userID, ok := conn.Locals("userID").(uint)
	if !ok {
		_ = conn.Close()
		return
	}

	cl := &hubClient{conn: conn}
	h.add(userID, cl)
	defer func() {
		h.remove(userID, cl)
		_ = conn.Close()
	}()

	// Incoming messages are only read to notice the client going away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
