package ingest

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pappt04/Lilyoutube-server/catalog"
	"github.com/Pappt04/Lilyoutube-server/replica"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newIngestor(store replica.Store) *Ingestor {
	cat := catalog.NewStaticCatalog(catalog.Video{ID: 1, Name: "intro.mp4"})
	return New("replica-a", store, cat, quietLogger(), nil)
}

func TestRecordView_IncrementsOwnRowOnly(t *testing.T) {
	ctx := context.Background()
	store := replica.NewMemoryStore()
	_, err := store.UpsertIfGreater(ctx, replica.Row{VideoID: 1, ReplicaID: "replica-b", Count: 10})
	require.NoError(t, err)

	ing := newIngestor(store)
	for i := 0; i < 3; i++ {
		require.NoError(t, ing.RecordView(ctx, 1))
	}

	own, ok, err := store.Get(ctx, 1, "replica-a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(3), own.Count)

	other, _, err := store.Get(ctx, 1, "replica-b")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), other.Count)
}

func TestRecordView_UnknownVideo(t *testing.T) {
	store := replica.NewMemoryStore()
	err := newIngestor(store).RecordView(context.Background(), 404)
	assert.True(t, errors.Is(err, ErrNotFound))

	rows, err := store.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRecordView_StorageFailure(t *testing.T) {
	store := replica.NewMemoryStore()
	require.NoError(t, store.Close())

	err := newIngestor(store).RecordView(context.Background(), 1)
	assert.True(t, errors.Is(err, ErrStorage))
}

func TestRecordView_ConcurrentIncrementsAreNotLost(t *testing.T) {
	const writers = 64

	stores := map[string]replica.Store{"memory": replica.NewMemoryStore()}
	mr := miniredis.RunT(t)
	stores["redis"] = replica.NewRedisStore(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}), "node-a")

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ing := newIngestor(store)
			var wg sync.WaitGroup
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					assert.NoError(t, ing.RecordView(context.Background(), 1))
				}()
			}
			wg.Wait()

			row, ok, err := store.Get(context.Background(), 1, "replica-a")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, uint64(writers), row.Count)
			require.NoError(t, store.Close())
		})
	}
}

func TestRecordView_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := newIngestor(replica.NewMemoryStore()).RecordView(ctx, 1)
	assert.True(t, errors.Is(err, context.Canceled))
}
