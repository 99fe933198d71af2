package models

// MediaKind represents the kind of an attached media entity
type MediaKind string

const (
	MediaKindImage         MediaKind = "image"
	MediaKindVideo         MediaKind = "video"
	MediaKindAnimatedImage MediaKind = "animated_image"
)

// IsVideoLike returns true for kinds that carry encoded variants
func (k MediaKind) IsVideoLike() bool {
	return k == MediaKindVideo || k == MediaKindAnimatedImage
}

// Valid reports whether k is one of the known kinds
func (k MediaKind) Valid() bool {
	switch k {
	case MediaKindImage, MediaKindVideo, MediaKindAnimatedImage:
		return true
	}
	return false
}

// QualityTier represents the user-selected variant policy
type QualityTier string

const (
	QualityLow    QualityTier = "low"
	QualityMedium QualityTier = "medium"
	QualityHigh   QualityTier = "high"
)

// QualityOriginal is recorded in history for images, which have no tiers
const QualityOriginal = "original"

// ParseQualityTier parses a tier name, rejecting unknown values
func ParseQualityTier(s string) (QualityTier, bool) {
	switch QualityTier(s) {
	case QualityLow, QualityMedium, QualityHigh:
		return QualityTier(s), true
	}
	return "", false
}

// TaskStatus represents the status of a transfer task
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusActive    TaskStatus = "active"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// IsFinished returns true if the task reached a terminal state
func (s TaskStatus) IsFinished() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// JobState represents the state of a durable job
type JobState string

const (
	JobStateEnqueued  JobState = "enqueued"
	JobStateRunning   JobState = "running"
	JobStateSucceeded JobState = "succeeded"
	JobStateFailed    JobState = "failed"
)
