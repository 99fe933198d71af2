package models

// TransferTask tracks one item of a running batch. Tasks live only as long
// as their batch and are never persisted.
type TransferTask struct {
	ID        string      `json:"id"`
	Item      MediaItem   `json:"item"`
	Tier      QualityTier `json:"tier"`
	TargetDir string      `json:"target_dir,omitempty"`
	FileName  string      `json:"file_name"`

	Status  TaskStatus `json:"status"`
	Percent int        `json:"percent"`
	Error   string     `json:"error,omitempty"`
}

// ProgressUpdate is emitted on each status transition of a task, and on
// byte progress when the content length is known
type ProgressUpdate struct {
	TaskID   string
	ItemID   string
	FileName string
	Percent  int
	Status   TaskStatus
	Err      error
}
