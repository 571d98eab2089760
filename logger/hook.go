package logger

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// BufferHook copies logrus entries into a LogBuffer. The node field becomes
// the entry's node id; remaining fields are appended as key=value pairs.
type BufferHook struct {
	buffer *LogBuffer
}

func NewBufferHook(buffer *LogBuffer) *BufferHook {
	return &BufferHook{buffer: buffer}
}

func (h *BufferHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *BufferHook) Fire(entry *logrus.Entry) error {
	nodeID := "system"
	if v, ok := entry.Data[FieldNode]; ok {
		nodeID = fmt.Sprint(v)
	}

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k == FieldNode || k == FieldComponent {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(entry.Message)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
	}

	h.buffer.Add(LogEntry{
		Timestamp: entry.Time,
		Level:     strings.ToUpper(entry.Level.String()),
		NodeID:    nodeID,
		Message:   b.String(),
	})
	return nil
}
