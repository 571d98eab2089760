package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pappt04/Lilyoutube-server/catalog"
	"github.com/Pappt04/Lilyoutube-server/gossip"
	"github.com/Pappt04/Lilyoutube-server/ingest"
	"github.com/Pappt04/Lilyoutube-server/metrics"
	"github.com/Pappt04/Lilyoutube-server/peer"
	"github.com/Pappt04/Lilyoutube-server/query"
	"github.com/Pappt04/Lilyoutube-server/replica"
)

type noopClient struct{}

func (noopClient) Exchange(context.Context, peer.PeerNode, gossip.Snapshot) (gossip.Snapshot, error) {
	return gossip.Snapshot{}, nil
}

type fixture struct {
	router *gin.Engine
	store  *replica.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, nil)
}

func newFixtureWith(t *testing.T, mutate func(*Deps)) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logrus.New()
	log.SetOutput(io.Discard)

	store := replica.NewMemoryStore()
	cat := catalog.NewStaticCatalog(
		catalog.Video{ID: 1, Name: "intro.mp4"},
		catalog.Video{ID: 2, Name: "outro.mp4"},
	)
	dir, err := peer.New([]peer.PeerNode{{ID: "replica-b", Address: "127.0.0.1:9"}}, peer.Config{})
	require.NoError(t, err)
	syncer, err := gossip.New(gossip.Config{ReplicaID: "replica-a", Interval: time.Hour, ExchangeTimeout: time.Second},
		store, dir, noopClient{}, log, nil)
	require.NoError(t, err)

	deps := Deps{
		ReplicaID: "replica-a",
		Ingestor:  ingest.New("replica-a", store, cat, log, nil),
		Queries:   query.New(store, cat),
		Catalog:   cat,
		Sync:      syncer,
		Peers:     dir,
		Metrics:   metrics.New("replica-a", false),
		Logger:    log,
	}
	if mutate != nil {
		mutate(&deps)
	}
	router := NewRouter(deps)
	return &fixture{router: router, store: store}
}

func (f *fixture) do(method, path string, body []byte) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestRecordViewAndRead(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		w := f.do(http.MethodPost, "/api/videos/1/view", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	}
	_, err := f.store.UpsertIfGreater(context.Background(), replica.Row{VideoID: 1, ReplicaID: "replica-b", Count: 10})
	require.NoError(t, err)

	w := f.do(http.MethodGet, "/api/videos/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got videoResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, videoResponse{ID: 1, Name: "intro.mp4", ViewsCount: 13}, got)
}

func TestRoutesWithoutPrefix(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/videos/2/view", nil).Code)

	w := f.do(http.MethodGet, "/videos/2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"viewsCount":1`)
}

func TestRecordView_Errors(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/api/videos/99/view", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/videos/abc/view", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/videos/99", nil).Code)

	require.NoError(t, f.store.Close())
	assert.Equal(t, http.StatusInternalServerError, f.do(http.MethodPost, "/api/videos/1/view", nil).Code)
	assert.Equal(t, http.StatusInternalServerError, f.do(http.MethodGet, "/api/videos/1", nil).Code)
}

func TestReplicaTable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, r := range []replica.Row{
		{VideoID: 1, ReplicaID: "replica-a", Count: 15},
		{VideoID: 1, ReplicaID: "replica-b", Count: 10},
		{VideoID: 5, ReplicaID: "replica-b", Count: 2},
	} {
		_, err := f.store.UpsertIfGreater(ctx, r)
		require.NoError(t, err)
	}

	w := f.do(http.MethodGet, "/api/videos/views/replica-table", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var rows []struct {
		VideoName   string `json:"videoName"`
		ReplicaName string `json:"replicaName"`
		Views       uint64 `json:"views"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	require.Len(t, rows, 3)
	assert.Equal(t, "intro.mp4", rows[0].VideoName)
	assert.Equal(t, "replica-a", rows[0].ReplicaName)
	assert.Equal(t, uint64(15), rows[0].Views)
	assert.Equal(t, "Unknown (5)", rows[2].VideoName)
}

func TestReplicaBreakdown(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/videos/1/view", nil).Code)

	w := f.do(http.MethodGet, "/api/videos/1/replicas", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got replicasResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, uint64(1), got.TotalViews)
	require.Len(t, got.Replicas, 1)
	assert.Equal(t, "replica-a", got.Replicas[0].ReplicaID)
}

func TestInternalSyncExchange(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/videos/1/view", nil).Code)

	body, err := json.Marshal(gossip.Snapshot{
		SourceReplica: "replica-b",
		Rows:          []replica.Row{{VideoID: 1, ReplicaID: "replica-b", Count: 4}},
	})
	require.NoError(t, err)

	w := f.do(http.MethodPost, "/api/internal/views/sync", body)
	require.Equal(t, http.StatusOK, w.Code)
	var reply gossip.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	assert.Equal(t, "replica-a", reply.SourceReplica)
	assert.Len(t, reply.Rows, 2)

	w = f.do(http.MethodGet, "/api/videos/1", nil)
	assert.Contains(t, w.Body.String(), `"viewsCount":5`)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/internal/views/sync", []byte("{")).Code)
}

func TestInternalSyncExchange_RejectsOversizedSnapshot(t *testing.T) {
	f := newFixtureWith(t, func(d *Deps) { d.MaxSyncBody = 256 })

	rows := make([]replica.Row, 0, 32)
	for i := int64(1); i <= 32; i++ {
		rows = append(rows, replica.Row{VideoID: i, ReplicaID: "replica-b", Count: 7})
	}
	body, err := json.Marshal(gossip.Snapshot{SourceReplica: "replica-b", Rows: rows})
	require.NoError(t, err)
	require.Greater(t, len(body), 256)

	w := f.do(http.MethodPost, "/api/internal/views/sync", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	snap, err := f.store.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap, "nothing from a rejected snapshot is merged")
}

func TestInternalStateAndPeers(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/videos/2/view", nil).Code)

	w := f.do(http.MethodGet, "/api/internal/views/state", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap gossip.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	require.Len(t, snap.Rows, 1)
	assert.Equal(t, uint64(1), snap.Rows[0].Count)

	w = f.do(http.MethodGet, "/api/internal/peers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"health":"healthy"`)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "replica-a")

	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/videos/1/view", nil).Code)
	w = f.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "viewsync_views_recorded_total")
}
