package devbackend

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"nfviz.dev/core/backend"
	"nfviz.dev/core/log"
)

type Options struct {
	Project        string
	Region         string
	Bucket         string
	ServiceAccount string
	// pause between two frames of a step
	FrameDelay time.Duration
	// steps that fail, with the error they report
	Fail map[string]string
}

func DefaultOptions() Options {
	return Options{
		Project:        "nfviz-dev",
		Region:         "us-central1",
		Bucket:         "nfviz-dev-bucket",
		ServiceAccount: "nextflow-batch",
		FrameDelay:     150 * time.Millisecond,
	}
}

// Backend is a scripted stand-in for the execution backend. Steps stream
// canned output and the external pipeline moves one stage per Advance.
type Backend struct {
	opts Options
	l    *slog.Logger

	mu      sync.Mutex
	bucket  bool
	handoff bool
	stage   int
}

func New(opts Options, l *slog.Logger) *Backend {
	if l == nil {
		l = log.Discard()
	}
	return &Backend{opts: opts, l: l, stage: -1}
}

func (b *Backend) Router() http.Handler {
	mux := chi.NewRouter()
	mux.Post(backend.ExecutePath, b.Execute)
	mux.Get(backend.StatusPath, b.Status)
	mux.Get(backend.HealthPath, b.Health)
	return mux
}

// Advance moves the external pipeline one stage forward. It reports false
// once the pipeline is complete.
func (b *Backend) Advance() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stage >= len(stages)-1 {
		return false
	}
	b.stage++
	b.l.Info("pipeline advanced", "stage", b.stage)
	return true
}

// HandedOff reports whether the handoff step has run.
func (b *Backend) HandedOff() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handoff
}

func (b *Backend) Snapshot() backend.Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := backend.Snapshot{
		Bucket: backend.Bucket{Exists: b.bucket},
		Tasks:  make(map[string]string, len(pipelineTasks)),
	}
	if b.bucket {
		snap.Bucket.Location = "gs://" + b.opts.Bucket
	}
	for _, id := range pipelineTasks {
		snap.Tasks[id] = "pending"
	}
	if b.stage >= 0 {
		for id, st := range stages[b.stage] {
			snap.Tasks[id] = st
		}
		snap.AllComplete = b.stage == len(stages)-1
		snap.PipelineRunning = !snap.AllComplete
	}
	return snap
}

func (b *Backend) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, backend.Health{Status: "healthy", Project: b.opts.Project})
}

func (b *Backend) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, b.Snapshot())
}

func (b *Backend) Execute(w http.ResponseWriter, r *http.Request) {
	var req backend.ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Phase == "" {
		req.Phase = "setup"
	}
	l := b.l.With("step", req.StepID, "phase", req.Phase)
	l.Info("executing step")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	send := func(f frame) bool {
		if err := writeFrame(w, f); err != nil {
			l.Warn("failed to write frame", "err", err)
			return false
		}
		flusher.Flush()
		return true
	}

	lines, known := b.script(req.StepID)
	if !known {
		l.Warn("unknown step")
		send(stepError(fmt.Sprintf("Unknown step: %s", req.StepID)))
		return
	}

	for _, ln := range lines {
		if !send(frame{Log: ln.Log, Type: ln.Type}) {
			return
		}
		select {
		case <-r.Context().Done():
			l.Info("client went away")
			return
		case <-time.After(b.opts.FrameDelay):
		}
	}

	if msg, ok := b.opts.Fail[req.StepID]; ok {
		send(stepError(msg))
		return
	}

	done := frame{Log: "✓ Done", Type: "success", Status: "complete"}
	b.mu.Lock()
	switch req.StepID {
	case "create-bucket":
		b.bucket = true
		done.URL = "https://console.cloud.google.com/storage/browser/" + b.opts.Bucket
	case "write-config":
		b.handoff = true
	}
	b.mu.Unlock()
	send(done)
}

type frame struct {
	Log     string `json:"log,omitempty"`
	Type    string `json:"type,omitempty"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
	URL     string `json:"url,omitempty"`
}

func stepError(msg string) frame {
	return frame{Type: "error", Status: "error", Message: "✗ " + msg}
}

func writeFrame(w http.ResponseWriter, f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
