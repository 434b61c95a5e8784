package domain

import "time"

// Artifact is a tracked pair of source/derived files plus metadata,
// identified by an opaque id. Paths are absolute and immutable once set.
type Artifact struct {
	ID          string    `json:"id"`
	SourcePath  string    `json:"sourcePath"`
	DerivedPath string    `json:"derivedPath"`
	Filename    string    `json:"filename"`
	Original    string    `json:"originalFilename"`
	Size        int64     `json:"fileSize"`
	CreatedAt   time.Time `json:"createdAt"`
	Downloaded  bool      `json:"downloaded"`
}

// Age reports how long ago the artifact was registered.
func (a Artifact) Age(now time.Time) time.Duration {
	return now.Sub(a.CreatedAt)
}
