package models

// CanonicalContentType is the only container eligible for variant selection
const CanonicalContentType = "video/mp4"

// MediaItem represents one downloadable media entity of a post
type MediaItem struct {
	ID           string    `json:"id"` // <postId>_<index>
	SourceURL    string    `json:"source_url"`
	Kind         MediaKind `json:"kind"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	DurationMs   *int64    `json:"duration_ms,omitempty"`
	Width        *int      `json:"width,omitempty"`
	Height       *int      `json:"height,omitempty"`
	Bitrate      int64     `json:"bitrate,omitempty"` // chosen variant, 0 for images

	// Owning post
	PostID     string `json:"post_id"`
	PostAuthor string `json:"post_author,omitempty"`
	PostText   string `json:"post_text,omitempty"`
}

// VariantCandidate is one encoded alternative of a video-like entity
type VariantCandidate struct {
	ContentType string
	Bitrate     int64
	URL         string
}
