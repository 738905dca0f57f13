package stream

import (
	"encoding/json"
	"strings"

	"nfviz.dev/core/status"
)

// DataPrefix marks a line carrying a frame payload. Anything else on the
// stream (comments, keep-alives, blank separators) is ignored.
const DataPrefix = "data: "

const typeTaskUpdate = "task_update"

type FrameKind int

const (
	FrameNoop FrameKind = iota
	// output and/or terminal status for the step being executed
	FrameStep
	// status report for a different step, used by long-running steps that
	// drive other nodes of the graph
	FrameTaskUpdate
)

type Frame struct {
	Kind FrameKind

	HasLog  bool
	Log     string
	LogKind status.LogKind
	// complete or error; empty when the frame is not terminal
	Terminal status.Status
	Message  string
	URL      string

	Task       string
	TaskStatus status.Status
}

type payload struct {
	Log     *string `json:"log"`
	Type    string  `json:"type"`
	Status  string  `json:"status"`
	Message string  `json:"message"`
	URL     string  `json:"url"`
	Task    string  `json:"task"`
}

// ParseFrame decodes one line of a step stream. Malformed or unrecognized
// lines yield a FrameNoop rather than an error.
func ParseFrame(line string) Frame {
	line = strings.TrimSuffix(line, "\r")
	data, ok := strings.CutPrefix(line, DataPrefix)
	if !ok {
		return Frame{}
	}

	var p payload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return Frame{}
	}

	if p.Type == typeTaskUpdate {
		st := status.Status(p.Status)
		if p.Task == "" || !st.Valid() {
			return Frame{}
		}
		return Frame{
			Kind:       FrameTaskUpdate,
			Task:       p.Task,
			TaskStatus: st,
			Message:    p.Message,
		}
	}

	f := Frame{
		Kind:    FrameStep,
		Message: p.Message,
		URL:     p.URL,
	}
	if p.Log != nil {
		f.HasLog = true
		f.Log = *p.Log
		f.LogKind = status.ParseLogKind(p.Type)
	}
	switch st := status.Status(p.Status); st {
	case status.StatusComplete, status.StatusError:
		f.Terminal = st
	}

	if !f.HasLog && f.Terminal == "" && f.URL == "" {
		return Frame{}
	}
	return f
}
