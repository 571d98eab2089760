package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	return Config{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Timeout: time.Second}
}

func TestRecordView_RetriesServerErrors(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/videos/7/view", r.URL.Path)
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, fastConfig())
	require.NoError(t, c.RecordView(context.Background(), 7))
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestRecordView_GivesUpAfterMaxRetries(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, fastConfig())
	assert.Error(t, c.RecordView(context.Background(), 7))
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestRecordView_NotFoundIsNotRetried(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		http.Error(w, `{"error":"video not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, fastConfig())
	assert.ErrorIs(t, c.RecordView(context.Background(), 7), ErrNotFound)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestGetVideoAndTable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/videos/1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":1,"name":"intro.mp4","viewsCount":25}`))
	})
	mux.HandleFunc("/api/videos/views/replica-table", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"videoId":1,"videoName":"intro.mp4","replicaName":"replica-1","views":15},
			{"videoId":1,"videoName":"intro.mp4","replicaName":"replica-2","views":10}]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.Listener.Addr().String(), fastConfig())

	v, err := c.GetVideo(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, Video{ID: 1, Name: "intro.mp4", ViewsCount: 25}, v)

	rows, err := c.ReplicaTable(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "replica-2", rows[1].ReplicaName)
	assert.Equal(t, uint64(10), rows[1].Views)
}
