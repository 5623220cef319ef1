package protocol

import "time"

// NarrationRequest asks the daemon to narrate Text, or the file at InputPath
// when Text is empty. Zero fields fall back to the daemon's configuration.
type NarrationRequest struct {
	RequestID  string  `json:"request_id,omitempty"`
	Text       string  `json:"text,omitempty"`
	InputPath  string  `json:"input_path,omitempty"`
	OutputPath string  `json:"output_path,omitempty"`
	Speed      float64 `json:"speed,omitempty"`
	Language   string  `json:"language,omitempty"`
	MaxLength  int     `json:"max_length,omitempty"`
}

// NarrationProgress reports a state change or a synthesized chunk.
type NarrationProgress struct {
	RunID        string    `json:"run_id"`
	RequestID    string    `json:"request_id,omitempty"`
	Type         string    `json:"type"`
	State        string    `json:"state"`
	ChunkIndex   int       `json:"chunk_index"`
	ChunkCount   int       `json:"chunk_count"`
	ArtifactPath string    `json:"artifact_path,omitempty"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// NarrationResult is published when a run ends. FailedChunk is set only for
// synthesis failures.
type NarrationResult struct {
	RunID           string    `json:"run_id"`
	RequestID       string    `json:"request_id,omitempty"`
	State           string    `json:"state"`
	OutputPath      string    `json:"output_path,omitempty"`
	SpeedOutputPath string    `json:"speed_output_path,omitempty"`
	Chunks          int       `json:"chunks"`
	DurationMS      int64     `json:"duration_ms,omitempty"`
	Stage           string    `json:"stage,omitempty"`
	FailedChunk     *int      `json:"failed_chunk,omitempty"`
	Error           string    `json:"error,omitempty"`
	Diagnostic      string    `json:"diagnostic,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

const (
	SubjectNarrationRequest  = "narrator.request"
	SubjectNarrationProgress = "narrator.progress"
	SubjectNarrationDone     = "narrator.done"
)
