// Server-sent event helpers shared by the streaming endpoints (user feed,
// upload progress).
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// startSSE commits the event-stream headers.
func startSSE(c *gin.Context) {
	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()
}

// sendSSE writes one event and flushes it to the client.
func sendSSE(c *gin.Context, event string, data any) {
	c.SSEvent(event, data)
	c.Writer.Flush()
}
