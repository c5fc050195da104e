package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v3"

	"github.com/kingcam214/creatorvault-ultrastate-sub003/internal/core/domain"
	"github.com/kingcam214/creatorvault-ultrastate-sub003/internal/core/ports"
	"github.com/kingcam214/creatorvault-ultrastate-sub003/pkg/cache"
	"github.com/kingcam214/creatorvault-ultrastate-sub003/pkg/errors"
)

const listCacheTTL = 2 * time.Second

// StreamHandler serves the read-only query API. All room mutations go
// through the signaling transport; this surface only snapshots state for
// directory pages and platform services.
type StreamHandler struct {
	lifecycle  ports.Lifecycle
	iceServers []webrtc.ICEServer
	listCache  *cache.CacheWithFallback
}

func NewStreamHandler(lifecycle ports.Lifecycle, iceServers []webrtc.ICEServer) *StreamHandler {
	return &StreamHandler{
		lifecycle:  lifecycle,
		iceServers: iceServers,
		listCache:  cache.NewCacheWithFallback(listCacheTTL),
	}
}

func (h *StreamHandler) SetupRoutes(router *gin.Engine, mw ...gin.HandlerFunc) {
	api := router.Group("/api/v1", mw...)
	{
		api.GET("/streams", h.ListStreams)
		api.GET("/streams/:id", h.GetStream)
		api.GET("/streams/:id/viewers", h.GetViewerCount)
		api.GET("/ice-servers", h.GetICEServers)
	}
}

// ListStreams returns every live stream. The snapshot is cached briefly;
// directory pages poll this endpoint far more often than rooms change.
func (h *StreamHandler) ListStreams(c *gin.Context) {
	result, err := h.listCache.GetOrSet(c.Request.Context(), "active-streams",
		func(ctx context.Context) (interface{}, error) {
			return h.lifecycle.ListActiveStreams(ctx), nil
		}, listCacheTTL)
	if err != nil {
		c.Error(errors.NewInternalError("failed to list streams"))
		return
	}

	streams := result.([]domain.StreamStatus)
	c.JSON(http.StatusOK, gin.H{
		"streams": streams,
		"count":   len(streams),
	})
}

func (h *StreamHandler) GetStream(c *gin.Context) {
	streamID, ok := parseStreamID(c)
	if !ok {
		return
	}

	for _, status := range h.lifecycle.ListActiveStreams(c.Request.Context()) {
		if status.StreamID == streamID {
			c.JSON(http.StatusOK, gin.H{"stream": status})
			return
		}
	}

	c.Error(errors.NewNotFoundError("stream"))
}

func (h *StreamHandler) GetViewerCount(c *gin.Context) {
	streamID, ok := parseStreamID(c)
	if !ok {
		return
	}

	count, err := h.lifecycle.ViewerCount(c.Request.Context(), streamID)
	if err != nil {
		c.Error(errors.NewNotFoundError("stream"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stream_id":    streamID,
		"viewer_count": count,
	})
}

// GetICEServers hands clients the STUN/TURN set the coordinator was
// configured with, so web and mobile clients stay in sync without
// shipping the list in each app build.
func (h *StreamHandler) GetICEServers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ice_servers": h.iceServers})
}

func parseStreamID(c *gin.Context) (domain.StreamID, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.Error(errors.NewInvalidInputError("stream id must be an integer"))
		return 0, false
	}
	return domain.StreamID(id), true
}
