package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Events streams core events to the shell via Server-Sent Events.
//
// The connection stays open until the client disconnects. Each event is written as
//
//	id: 3f0c...
//	event: alertTriggered
//	data: {"id":"3f0c...","type":"alertTriggered","payload":{...},"createdAt":"..."}
//
// and a comment line is sent every heartbeat to keep proxies from timing out.
func (h *Handler) Events(c *gin.Context) {
	if h.svc.Events == nil {
		h.unavailable(c, "event stream")
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	events, cancel := h.svc.Events.Subscribe()
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	fmt.Fprintf(c.Writer, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case ev, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Warn("event not encodable", zap.String("type", ev.Type), zap.Error(err))
				continue
			}
			fmt.Fprintf(c.Writer, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, data)
			flusher.Flush()

		case <-ticker.C:
			fmt.Fprintf(c.Writer, ": heartbeat\n\n")
			flusher.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}
