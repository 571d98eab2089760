package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pappt04/Lilyoutube-server/catalog"
	"github.com/Pappt04/Lilyoutube-server/replica"
)

func seeded(t *testing.T, rows ...replica.Row) *replica.MemoryStore {
	t.Helper()
	store := replica.NewMemoryStore()
	for _, r := range rows {
		_, err := store.UpsertIfGreater(context.Background(), r)
		require.NoError(t, err)
	}
	return store
}

func TestTotalViews_SumsAllReplicas(t *testing.T) {
	store := seeded(t,
		replica.Row{VideoID: 1, ReplicaID: "replica-a", Count: 15},
		replica.Row{VideoID: 1, ReplicaID: "replica-b", Count: 10},
		replica.Row{VideoID: 2, ReplicaID: "replica-a", Count: 99},
	)
	agg := New(store, nil)

	total, err := agg.TotalViews(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(25), total)

	total, err = agg.TotalViews(context.Background(), 3)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestReplicaBreakdown(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_000)
	store := seeded(t,
		replica.Row{VideoID: 1, ReplicaID: "replica-b", Count: 10, UpdatedAt: at},
		replica.Row{VideoID: 1, ReplicaID: "replica-a", Count: 15},
	)

	got, err := New(store, nil).ReplicaBreakdown(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []ReplicaCount{
		{ReplicaID: "replica-a", Count: 15},
		{ReplicaID: "replica-b", Count: 10, LastUpdatedAt: at.UnixMilli()},
	}, got)
}

func TestReplicaTable_NamesVideos(t *testing.T) {
	store := seeded(t,
		replica.Row{VideoID: 1, ReplicaID: "replica-a", Count: 3},
		replica.Row{VideoID: 1, ReplicaID: "replica-b", Count: 4},
		replica.Row{VideoID: 9, ReplicaID: "replica-a", Count: 1},
	)
	cat := catalog.NewStaticCatalog(catalog.Video{ID: 1, Name: "intro.mp4"})

	got, err := New(store, cat).ReplicaTable(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []TableRow{
		{VideoID: 1, VideoName: "intro.mp4", ReplicaName: "replica-a", Views: 3},
		{VideoID: 1, VideoName: "intro.mp4", ReplicaName: "replica-b", Views: 4},
		{VideoID: 9, VideoName: "Unknown (9)", ReplicaName: "replica-a", Views: 1},
	}, got)
}

func TestStorageErrorsPropagate(t *testing.T) {
	store := replica.NewMemoryStore()
	require.NoError(t, store.Close())
	agg := New(store, nil)

	_, err := agg.TotalViews(context.Background(), 1)
	assert.True(t, errors.Is(err, replica.ErrStorage))
	_, err = agg.ReplicaTable(context.Background())
	assert.True(t, errors.Is(err, replica.ErrStorage))
}
