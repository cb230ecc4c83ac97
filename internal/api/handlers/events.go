package handlers

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codyseavey/tcg-sorter/backend/internal/services"
)

const heartbeatInterval = 30 * time.Second

type EventHandler struct {
	hub       *services.EventHub
	heartbeat time.Duration
}

func NewEventHandler(hub *services.EventHub) *EventHandler {
	return &EventHandler{hub: hub, heartbeat: heartbeatInterval}
}

// Stream sends hub events to the client as server-sent events until it
// disconnects
func (h *EventHandler) Stream(c *gin.Context) {
	events, cancel := h.hub.Subscribe()
	defer cancel()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("connected", gin.H{"time": time.Now().UTC()})
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(ev.Type, ev.Data)
			return true
		case t := <-ticker.C:
			c.SSEvent("heartbeat", gin.H{"time": t.UTC()})
			return true
		}
	})
}
