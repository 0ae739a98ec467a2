package notify

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

type Handler struct{ notifier Notifier }

func RegisterRoutes(r gin.IRoutes, notifier Notifier) {
	h := &Handler{notifier: notifier}
	// SSE: UIのテーブル表示を更新するための合図
	r.GET("/events/:table", h.Stream)
}

var sseTables = map[string]struct{}{
	"books":    {},
	"authors":  {},
	"students": {},
	"issues":   {},
	"fines":    {},
}

func (h *Handler) Stream(c *gin.Context) {
	table := c.Param("table")
	if _, ok := sseTables[table]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown table"})
		return
	}

	events, cancel := h.notifier.Subscribe(c.Request.Context(), table)
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			data, err := json.Marshal(ev)
			if err != nil {
				return true
			}
			c.SSEvent("change", string(data))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
