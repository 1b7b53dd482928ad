package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logOne(t *testing.T, event Event) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	adapter := NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	adapter.Log(event)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestSlogAdapterLogsCommand(t *testing.T) {
	entry := logOne(t, Event{
		Timestamp: time.Now(),
		SessionID: "0123456789abcdef",
		Direction: DirectionOut,
		Layer:     LayerMI,
		Command:   &CommandEvent{Token: 12, Text: "-target-download"},
	})

	assert.Equal(t, "DEBUG", entry["level"])
	assert.Equal(t, "01234567", entry["session"])
	assert.Equal(t, "OUT", entry["direction"])
	assert.Equal(t, float64(12), entry["token"])
	assert.Equal(t, "-target-download", entry["command"])
}

func TestSlogAdapterLogsRecord(t *testing.T) {
	entry := logOne(t, Event{
		Direction: DirectionIn,
		Layer:     LayerMI,
		Record:    &RecordEvent{Type: "target", Payload: "Erasing device Flash:"},
	})

	assert.Equal(t, "target", entry["type"])
	assert.Equal(t, "Erasing device Flash:", entry["payload"])
	assert.NotContains(t, entry, "token")
}

func TestSlogAdapterLogsErrorsAtWarn(t *testing.T) {
	entry := logOne(t, Event{
		Category: CategoryError,
		Error:    &ErrorEventData{Layer: LayerTransport, Message: "broken pipe"},
	})

	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "broken pipe", entry["error_msg"])
}
