package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"nfviz.dev/core/status"
)

func TestParseFrame(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Frame
	}{
		{
			name: "log line",
			line: `data: {"log":"Enabling APIs...","type":"info"}`,
			want: Frame{Kind: FrameStep, HasLog: true, Log: "Enabling APIs...", LogKind: status.LogInfo},
		},
		{
			name: "success with terminal status",
			line: `data: {"log":"✓ done","type":"success","status":"complete"}`,
			want: Frame{Kind: FrameStep, HasLog: true, Log: "✓ done", LogKind: status.LogSuccess, Terminal: status.StatusComplete},
		},
		{
			name: "error with message and url",
			line: `data: {"status":"error","message":"quota exceeded","url":"https://console.example"}`,
			want: Frame{Kind: FrameStep, Terminal: status.StatusError, Message: "quota exceeded", URL: "https://console.example"},
		},
		{
			name: "task update",
			line: `data: {"type":"task_update","task":"fastqc","status":"running","message":"FastQC started"}`,
			want: Frame{Kind: FrameTaskUpdate, Task: "fastqc", TaskStatus: status.StatusRunning, Message: "FastQC started"},
		},
		{
			name: "carriage return",
			line: "data: {\"log\":\"x\"}\r",
			want: Frame{Kind: FrameStep, HasLog: true, Log: "x", LogKind: status.LogInfo},
		},
		{name: "blank", line: ""},
		{name: "comment", line: ": keep-alive"},
		{name: "missing space", line: `data:{"log":"x"}`},
		{name: "invalid json", line: `data: {"log":`},
		{name: "not an object", line: `data: [DONE]`},
		{name: "unknown status only", line: `data: {"status":"queued"}`},
		{name: "task update without task", line: `data: {"type":"task_update","status":"running"}`},
		{name: "task update bad status", line: `data: {"type":"task_update","task":"quant","status":"paused"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseFrame(tt.line))
		})
	}
}

func TestLineBuffer(t *testing.T) {
	var b LineBuffer

	assert.Empty(t, b.Feed([]byte(`data: {"log":"hi"`)))
	assert.Equal(t, `data: {"log":"hi"`, b.Pending())

	assert.Equal(t, []string{`data: {"log":"hi"}`, ""}, b.Feed([]byte("}\n\ndata: ")))
	assert.Equal(t, "data: ", b.Pending())

	assert.Equal(t, []string{"data: x"}, b.Feed([]byte("x\n")))
	assert.Empty(t, b.Pending())
}
