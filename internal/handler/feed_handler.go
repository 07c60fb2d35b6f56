package handler

import (
	"encoding/json"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-board-api/internal/feed"
	"github.com/noah-isme/campus-board-api/internal/models"
)

// FeedHandler streams live notice snapshots over Server-Sent Events.
type FeedHandler struct {
	hub       *feed.Hub
	keepAlive time.Duration
	queueSize int
	logger    *zap.Logger
}

// NewFeedHandler creates the SSE handler.
func NewFeedHandler(hub *feed.Hub, keepAlive time.Duration, queueSize int, logger *zap.Logger) *FeedHandler {
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}
	if queueSize <= 0 {
		queueSize = 8
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedHandler{hub: hub, keepAlive: keepAlive, queueSize: queueSize, logger: logger}
}

// Stream godoc
// @Summary Live notice feed
// @Description Server-Sent Events stream of full notice snapshots for the viewer's role
// @Tags Feed
// @Produce text/event-stream
// @Success 200 {string} string "event stream"
// @Router /feed [get]
func (h *FeedHandler) Stream(c *gin.Context) {
	role := viewerRole(c)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	// The callback runs on the hub's broadcast goroutine; hand snapshots to
	// the writer through a buffered channel so a slow client cannot stall
	// the fan-out. When the buffer is full the oldest pending snapshot is
	// dropped; only the newest state matters.
	snapshots := make(chan []models.Notice, h.queueSize)
	unsubscribe, done := h.hub.Subscribe(role, func(notices []models.Notice) {
		for {
			select {
			case snapshots <- notices:
				return
			default:
				select {
				case <-snapshots:
				default:
				}
			}
		}
	})
	defer unsubscribe()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-clientGone:
			return false
		case <-done:
			// The hub dropped this subscription after a reload failure. End
			// the stream so the client reconnects and subscribes afresh.
			return false
		case notices := <-snapshots:
			payload, err := json.Marshal(notices)
			if err != nil {
				h.logger.Warn("failed to encode feed snapshot", zap.Error(err))
				return true
			}
			c.SSEvent("notices", string(payload))
			return true
		case <-ticker.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
			return true
		}
	})
}
