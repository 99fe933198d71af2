package models

import "time"

// JobDescriptor is the unit of work handed to the durable path
type JobDescriptor struct {
	MediaURL    string    `json:"media_url"`
	FilePath    string    `json:"file_path"`
	FileName    string    `json:"file_name"`
	MediaKind   MediaKind `json:"media_kind"`
	QualityTier string    `json:"quality_tier"` // tier name, or "original" for images
	PostID      string    `json:"post_id,omitempty"`
	PostAuthor  string    `json:"post_author,omitempty"`
}

// Job tracks one durable transfer across process restarts
type Job struct {
	ID         string `boltholdKey:"ID"`
	Descriptor JobDescriptor

	State         JobState `boltholdIndex:"State"`
	Attempts      int
	LastError     string
	NextAttemptAt time.Time

	// Metadata
	CreatedAt  time.Time
	UpdatedAt  time.Time
	FinishedAt *time.Time
}
