// Package api serves the HTTP surface of a replica node: the client view
// endpoints, the internal peer-sync endpoints and diagnostics.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Pappt04/Lilyoutube-server/catalog"
	"github.com/Pappt04/Lilyoutube-server/gossip"
	"github.com/Pappt04/Lilyoutube-server/metrics"
	"github.com/Pappt04/Lilyoutube-server/peer"
	"github.com/Pappt04/Lilyoutube-server/query"
)

type ViewRecorder interface {
	RecordView(ctx context.Context, videoID int64) error
}

type ViewQuerier interface {
	TotalViews(ctx context.Context, videoID int64) (uint64, error)
	ReplicaBreakdown(ctx context.Context, videoID int64) ([]query.ReplicaCount, error)
	ReplicaTable(ctx context.Context) ([]query.TableRow, error)
}

type SnapshotExchanger interface {
	HandleExchange(ctx context.Context, incoming gossip.Snapshot) (gossip.Snapshot, error)
	LocalSnapshot(ctx context.Context) (gossip.Snapshot, error)
}

type PeerLister interface {
	List() []peer.PeerNode
}

// DefaultMaxSyncBody caps a peer snapshot accepted by the sync endpoint.
const DefaultMaxSyncBody int64 = 32 << 20

// Deps are the node components the handlers call into.
type Deps struct {
	ReplicaID string
	Ingestor  ViewRecorder
	Queries   ViewQuerier
	Catalog   catalog.Catalog
	Sync      SnapshotExchanger
	Peers     PeerLister
	Metrics   *metrics.Metrics
	Logger    logrus.FieldLogger

	// MaxSyncBody is the largest snapshot body in bytes; zero means
	// DefaultMaxSyncBody.
	MaxSyncBody int64
}

type handlers struct {
	Deps
}

// NewRouter builds the gin engine. Every route is served both under /api and
// at the root, for gateways that strip the prefix.
func NewRouter(deps Deps) *gin.Engine {
	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.Use(LoggingMiddleware(deps.Logger))
	router.Use(RecoveryMiddleware(deps.Logger))
	router.Use(CORSMiddleware())
	router.Use(deps.Metrics.Middleware())

	h := &handlers{Deps: deps}

	router.GET("/health", h.health)
	router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	h.mount(router.Group("/api"))
	h.mount(router.Group(""))
	return router
}

func (h *handlers) mount(g *gin.RouterGroup) {
	videos := g.Group("/videos")
	videos.GET("/views/replica-table", h.replicaTable)
	videos.POST("/:videoId/view", h.recordView)
	videos.GET("/:videoId", h.getVideo)
	videos.GET("/:videoId/replicas", h.replicaBreakdown)

	internal := g.Group("/internal")
	internal.POST("/views/sync", h.exchange)
	internal.GET("/views/state", h.state)
	internal.GET("/peers", h.peers)
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"replica": h.ReplicaID,
	})
}
