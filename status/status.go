package status

import (
	"maps"
	"slices"
	"time"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

func (s Status) String() string {
	return string(s)
}

// IsFinish reports whether s is one of the terminal states.
func (s Status) IsFinish() bool {
	return s == StatusComplete || s == StatusError
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusComplete, StatusError:
		return true
	}
	return false
}

type LogKind string

const (
	LogInfo    LogKind = "info"
	LogSuccess LogKind = "success"
	LogError   LogKind = "error"
)

// ParseLogKind maps a wire severity onto a LogKind; anything unknown is info.
func ParseLogKind(s string) LogKind {
	switch LogKind(s) {
	case LogSuccess:
		return LogSuccess
	case LogError:
		return LogError
	default:
		return LogInfo
	}
}

// TimestampLayout is the wall-clock layout shown next to every log line.
const TimestampLayout = "15:04:05"

type LogEntry struct {
	Timestamp string  `json:"timestamp"`
	Message   string  `json:"message"`
	Kind      LogKind `json:"kind"`
}

func NewLogEntry(at time.Time, kind LogKind, message string) LogEntry {
	return LogEntry{
		Timestamp: at.Local().Format(TimestampLayout),
		Message:   message,
		Kind:      kind,
	}
}

// Append returns logs with e added at the end. The result never shares its
// backing array with logs, so earlier snapshots cannot observe the append.
func Append(logs []LogEntry, e LogEntry) []LogEntry {
	out := make([]LogEntry, len(logs), len(logs)+1)
	copy(out, logs)
	return append(out, e)
}

type StepState struct {
	Status Status     `json:"status"`
	Logs   []LogEntry `json:"logs"`
	// side-channel resource link reported by the backend, if any
	URL string `json:"url,omitempty"`
}

func (s StepState) clone() StepState {
	s.Logs = slices.Clone(s.Logs)
	if s.Logs == nil {
		s.Logs = []LogEntry{}
	}
	return s
}

// Snapshot is an immutable copy of the store taken between two mutations.
// Seq is the sequence number of the last change it includes.
type Snapshot struct {
	Seq   uint64               `json:"seq"`
	Steps map[string]StepState `json:"steps"`
}

func (s Snapshot) Status(id string) Status {
	if st, ok := s.Steps[id]; ok {
		return st.Status
	}
	return StatusPending
}

func (s Snapshot) Logs(id string) []LogEntry {
	return s.Steps[id].Logs
}

// IDs returns the step ids in the snapshot, sorted.
func (s Snapshot) IDs() []string {
	return slices.Sorted(maps.Keys(s.Steps))
}
