package backend

// ExecuteRequest asks the backend to run one step and stream its output.
type ExecuteRequest struct {
	StepID string `json:"stepId"`
	Phase  string `json:"phase"`
}

type Bucket struct {
	Exists   bool   `json:"exists"`
	Location string `json:"location,omitempty"`
}

// Snapshot is the aggregate externally observed state returned by the
// polling endpoint. Tasks maps step ids to their observed status string.
type Snapshot struct {
	Bucket          Bucket            `json:"bucket"`
	Tasks           map[string]string `json:"tasks"`
	PipelineRunning bool              `json:"pipelineRunning"`
	AllComplete     bool              `json:"allComplete"`
}

type Health struct {
	Status  string `json:"status"`
	Project string `json:"project,omitempty"`
}
