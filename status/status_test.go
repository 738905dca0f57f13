package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAppendDoesNotAlias(t *testing.T) {
	base := make([]LogEntry, 1, 8)
	base[0] = LogEntry{Message: "zero"}

	a := Append(base, LogEntry{Message: "a"})
	b := Append(base, LogEntry{Message: "b"})

	assert.Equal(t, "a", a[1].Message)
	assert.Equal(t, "b", b[1].Message)
	assert.Len(t, base, 1)
}

func TestNewLogEntry(t *testing.T) {
	at := time.Date(2026, 1, 30, 17, 4, 5, 0, time.Local)
	e := NewLogEntry(at, LogSuccess, "✓ Done")

	assert.Equal(t, "17:04:05", e.Timestamp)
	assert.Equal(t, LogSuccess, e.Kind)
	assert.Equal(t, "✓ Done", e.Message)
}

func TestParseLogKind(t *testing.T) {
	assert.Equal(t, LogSuccess, ParseLogKind("success"))
	assert.Equal(t, LogError, ParseLogKind("error"))
	assert.Equal(t, LogInfo, ParseLogKind("info"))
	assert.Equal(t, LogInfo, ParseLogKind(""))
	assert.Equal(t, LogInfo, ParseLogKind("warning"))
}

func TestStatusHelpers(t *testing.T) {
	assert.True(t, StatusComplete.IsFinish())
	assert.True(t, StatusError.IsFinish())
	assert.False(t, StatusRunning.IsFinish())
	assert.True(t, StatusPending.Valid())
	assert.False(t, Status("SUCCEEDED").Valid())
}
