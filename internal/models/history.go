package models

// HistoryRecord represents one completed transfer
type HistoryRecord struct {
	ID  string `boltholdKey:"ID" json:"id"`
	Seq uint64 `json:"-"` // Insertion order, breaks DownloadedAtMs ties

	SourceURL string    `json:"source_url"`
	Kind      MediaKind `boltholdIndex:"Kind" json:"kind"`
	Quality   string    `json:"quality"` // tier name, or "original" for images
	FileName  string    `json:"file_name"`
	FilePath  string    `json:"file_path"`
	FileSize  int64     `json:"file_size"`

	PostID     string `json:"post_id,omitempty"`
	PostAuthor string `boltholdIndex:"PostAuthor" json:"post_author,omitempty"`

	DownloadedAtMs int64 `json:"downloaded_at"`
}

// HistoryFilter narrows a history listing. Zero values match everything.
type HistoryFilter struct {
	Kind    MediaKind
	Author  string
	SinceMs int64
}
