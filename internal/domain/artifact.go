package domain

import "time"

// Artifact is the metadata record for one stored image or video payload.
// The bytes themselves live in the blob backend under StoragePath within
// ContainerKey; the artifact store owns both sides.
type Artifact struct {
	ID           string
	Kind         MediaKind
	ContainerKey string
	StoragePath  string
	ByteSize     int64
	ContentType  string
	Transparency bool
	CreatedAt    time.Time
	SourceJobID  string
}

// AccessToken grants time-limited, read-only access to a single artifact.
// Tokens are never persisted; each request mints a fresh one.
type AccessToken struct {
	ArtifactID string
	ExpiresAt  time.Time
	SignedURL  string
}

// GalleryEntry joins an artifact with the request metadata of the job that
// produced it. HasGenerationRecord is false for direct uploads and for
// artifacts whose job has been purged by retention.
type GalleryEntry struct {
	Artifact            Artifact
	Prompt              string
	RequesterID         string
	JobState            JobState
	HasGenerationRecord bool
}
