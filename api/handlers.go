package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Pappt04/Lilyoutube-server/catalog"
	"github.com/Pappt04/Lilyoutube-server/gossip"
	"github.com/Pappt04/Lilyoutube-server/ingest"
	"github.com/Pappt04/Lilyoutube-server/query"
)

type videoResponse struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	ViewsCount uint64 `json:"viewsCount"`
}

type replicasResponse struct {
	VideoID    int64                `json:"videoId"`
	TotalViews uint64               `json:"totalViews"`
	Replicas   []query.ReplicaCount `json:"replicas"`
}

func videoID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("videoId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid video id"})
		return 0, false
	}
	return id, true
}

// storageFailure answers 500 without leaking backend details.
func (h *handlers) storageFailure(c *gin.Context, err error, msg string) {
	h.Logger.WithError(err).WithField("request_id", c.GetString(requestIDKey)).Error(msg)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

func (h *handlers) recordView(c *gin.Context) {
	id, ok := videoID(c)
	if !ok {
		return
	}
	err := h.Ingestor.RecordView(c.Request.Context(), id)
	switch {
	case err == nil:
		c.Status(http.StatusOK)
	case errors.Is(err, ingest.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "video not found"})
	default:
		h.storageFailure(c, err, "failed to record view")
	}
}

func (h *handlers) getVideo(c *gin.Context) {
	id, ok := videoID(c)
	if !ok {
		return
	}
	video, err := h.Catalog.Lookup(c.Request.Context(), id)
	if errors.Is(err, catalog.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "video not found"})
		return
	}
	if err != nil {
		h.storageFailure(c, err, "failed to look up video")
		return
	}

	total, err := h.Queries.TotalViews(c.Request.Context(), id)
	if err != nil {
		h.storageFailure(c, err, "failed to read views")
		return
	}
	c.JSON(http.StatusOK, videoResponse{ID: video.ID, Name: video.Name, ViewsCount: total})
}

func (h *handlers) replicaBreakdown(c *gin.Context) {
	id, ok := videoID(c)
	if !ok {
		return
	}
	replicas, err := h.Queries.ReplicaBreakdown(c.Request.Context(), id)
	if err != nil {
		h.storageFailure(c, err, "failed to read views")
		return
	}
	var total uint64
	for _, r := range replicas {
		total += r.Count
	}
	c.JSON(http.StatusOK, replicasResponse{VideoID: id, TotalViews: total, Replicas: replicas})
}

func (h *handlers) replicaTable(c *gin.Context) {
	rows, err := h.Queries.ReplicaTable(c.Request.Context())
	if err != nil {
		h.storageFailure(c, err, "failed to read replica table")
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (h *handlers) exchange(c *gin.Context) {
	limit := h.MaxSyncBody
	if limit <= 0 {
		limit = DefaultMaxSyncBody
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	var incoming gossip.Snapshot
	if err := c.ShouldBindJSON(&incoming); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "snapshot too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid snapshot"})
		return
	}
	reply, err := h.Sync.HandleExchange(c.Request.Context(), incoming)
	if err != nil {
		h.storageFailure(c, err, "failed to exchange snapshot")
		return
	}
	c.JSON(http.StatusOK, reply)
}

func (h *handlers) state(c *gin.Context) {
	snap, err := h.Sync.LocalSnapshot(c.Request.Context())
	if err != nil {
		h.storageFailure(c, err, "failed to read local state")
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *handlers) peers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"replica": h.ReplicaID,
		"peers":   h.Peers.List(),
	})
}
