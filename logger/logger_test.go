package logger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogBuffer_KeepsNewestEntries(t *testing.T) {
	lb := NewLogBuffer(3)
	for i := 1; i <= 5; i++ {
		lb.Add(LogEntry{NodeID: "n", Message: fmt.Sprintf("m%d", i)})
	}

	require.Equal(t, 3, lb.Len())
	var msgs []string
	for _, e := range lb.GetAll() {
		msgs = append(msgs, e.Message)
	}
	assert.Equal(t, []string{"m3", "m4", "m5"}, msgs)

	recent := lb.GetRecent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "m4", recent[0].Message)
	assert.Equal(t, "m5", recent[1].Message)

	lb.Clear()
	assert.Zero(t, lb.Len())
	assert.Empty(t, lb.GetRecent(10))
}

func TestLogBuffer_PartiallyFilled(t *testing.T) {
	lb := NewLogBuffer(10)
	lb.Add(LogEntry{Message: "only"})
	got := lb.GetRecent(5)
	require.Len(t, got, 1)
	assert.Equal(t, "only", got[0].Message)
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestLogger_FansOutJSON(t *testing.T) {
	l := New(Options{Level: "debug", Format: "json"})
	var out bytes.Buffer
	l.AddOutput(&out)

	l.ForNode("replica-a").WithField("video_id", 7).Info("view recorded")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &rec))
	assert.Equal(t, "replica-a", rec["node"])
	assert.Equal(t, "view recorded", rec["msg"])
	assert.Equal(t, float64(7), rec["video_id"])

	out.Reset()
	l.RemoveOutput(&out)
	l.ForNode("replica-a").Info("dropped")
	assert.Zero(t, out.Len())
}

func TestLogger_DisabledStillFeedsBuffer(t *testing.T) {
	l := New(Options{Level: "info"})
	var out bytes.Buffer
	l.AddOutput(&out)
	buf := NewLogBuffer(10)
	l.AttachBuffer(buf)
	l.SetEnabled(false)

	Component(l.ForNode("replica-b"), "gossip").WithField("peer", "replica-a").Warn("exchange failed")

	assert.Zero(t, out.Len())
	entries := buf.GetAll()
	require.Len(t, entries, 1)
	assert.Equal(t, "replica-b", entries[0].NodeID)
	assert.Equal(t, "WARNING", entries[0].Level)
	assert.Equal(t, "exchange failed peer=replica-a", entries[0].Message)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, logrus.WarnLevel, ParseLevel(" warn "))
	assert.Equal(t, logrus.InfoLevel, ParseLevel("nonsense"))
}
