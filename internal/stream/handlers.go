package stream

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes exposes the per-session event feed. Subscribers receive
// every event published for the session; messages they send are discarded.
func RegisterRoutes(r fiber.Router, hub *Hub) {
	r.Get("/ws/:sessionID", websocket.New(func(c *websocket.Conn) {
		client := hub.Register(c.Params("sessionID"))

		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			for payload := range client.Send {
				if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
					return
				}
			}
		}()

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}

		// Unregister closes Send, which lets the writer drain and exit.
		hub.Unregister(client)
		<-writerDone
	}))
}
