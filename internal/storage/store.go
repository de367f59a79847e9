package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"
	"time"

	_ "image/gif"
	_ "image/jpeg"

	"github.com/google/uuid"

	"mediagen/internal/domain"
	"mediagen/internal/infra"
)

const (
	putAttempts = 3
	losslessPNG = "image/png"
)

// PutInput describes one artifact write.
type PutInput struct {
	Kind          domain.MediaKind
	Data          []byte
	ContentType   string
	SuggestedName string
	SourceJobID   string
}

// Store is the artifact store: blob bytes go to the backend, metadata rows to
// the repository, partitioned by content kind into separate containers.
// Writes are independent by construction, every write targets a fresh
// artifact id, so no cross-request locking exists here.
type Store struct {
	backend        Backend
	artifacts      domain.ArtifactRepository
	imageContainer string
	videoContainer string
	logger         infra.Logger

	retryBase time.Duration
	now       func() time.Time
	newID     func() string
}

// NewStore wires a store over a backend and a metadata repository.
func NewStore(backend Backend, artifacts domain.ArtifactRepository, imageContainer, videoContainer string, logger infra.Logger) *Store {
	return &Store{
		backend:        backend,
		artifacts:      artifacts,
		imageContainer: imageContainer,
		videoContainer: videoContainer,
		logger:         logger,
		retryBase:      200 * time.Millisecond,
		now:            time.Now,
		newID:          uuid.NewString,
	}
}

// Put persists bytes into the container for kind and records the metadata
// row. Transient backend failures are retried with bounded exponential
// backoff; exhaustion surfaces as a storage-unavailable error.
//
// For images the requested content type is advisory only: when the decoded
// pixel data carries an alpha channel with at least one non-opaque pixel, the
// stored content type is forced to the lossless alpha-preserving format and
// the transparency flag is set.
func (s *Store) Put(ctx context.Context, in PutInput) (*domain.Artifact, error) {
	if len(in.Data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", domain.ErrInvalidRequest)
	}
	container, err := s.container(in.Kind)
	if err != nil {
		return nil, err
	}

	data := in.Data
	contentType := in.ContentType
	transparent := false
	if in.Kind == domain.MediaKindImage {
		data, contentType, transparent = s.applyTransparencyPolicy(data, contentType)
	}

	artifact := &domain.Artifact{
		ID:           s.newID(),
		Kind:         in.Kind,
		ContainerKey: container,
		ByteSize:     int64(len(data)),
		ContentType:  contentType,
		Transparency: transparent,
		CreatedAt:    s.now(),
		SourceJobID:  in.SourceJobID,
	}
	artifact.StoragePath = storagePath(artifact.ID, in.SuggestedName, contentType, artifact.CreatedAt)

	if err := s.putWithRetry(ctx, container, artifact.StoragePath, data, contentType); err != nil {
		return nil, err
	}
	if err := s.artifacts.Create(ctx, artifact); err != nil {
		// Best effort: do not leave an orphaned blob behind a failed row.
		_ = s.backend.Delete(ctx, container, artifact.StoragePath)
		return nil, fmt.Errorf("%w: record artifact: %v", domain.ErrStorageUnavailable, err)
	}

	s.logger.Info().
		Str("artifact_id", artifact.ID).
		Str("container", container).
		Int64("bytes", artifact.ByteSize).
		Bool("transparency", transparent).
		Msg("storage: artifact stored")
	return artifact, nil
}

// Get returns the exact bytes previously written for the artifact.
func (s *Store) Get(ctx context.Context, artifactID string) ([]byte, error) {
	artifact, err := s.artifacts.GetByID(ctx, artifactID)
	if err != nil {
		return nil, err
	}
	data, err := s.backend.Get(ctx, artifact.ContainerKey, artifact.StoragePath)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return nil, fmt.Errorf("%w: blob missing for %s", domain.ErrArtifactNotFound, artifactID)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return data, nil
}

// Describe returns the metadata row for the artifact.
func (s *Store) Describe(ctx context.Context, artifactID string) (*domain.Artifact, error) {
	return s.artifacts.GetByID(ctx, artifactID)
}

// List pages artifact metadata for a kind, newest first.
func (s *Store) List(ctx context.Context, kind domain.MediaKind, filter domain.ArtifactFilter, pageToken string, limit int) ([]domain.Artifact, string, error) {
	return s.artifacts.List(ctx, kind, filter, pageToken, limit)
}

// Delete removes the artifact. Deleting an unknown id is a no-op success;
// the second delete of the same id observes nothing left to do.
func (s *Store) Delete(ctx context.Context, artifactID string) error {
	artifact, err := s.artifacts.GetByID(ctx, artifactID)
	if err != nil {
		if errors.Is(err, domain.ErrArtifactNotFound) {
			return nil
		}
		return err
	}
	if err := s.backend.Delete(ctx, artifact.ContainerKey, artifact.StoragePath); err != nil && !errors.Is(err, ErrBlobNotFound) {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return s.artifacts.Delete(ctx, artifactID)
}

func (s *Store) putWithRetry(ctx context.Context, container, path string, data []byte, contentType string) error {
	var lastErr error
	delay := s.retryBase
	for attempt := 1; attempt <= putAttempts; attempt++ {
		lastErr = s.backend.Put(ctx, container, path, data, contentType)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt < putAttempts {
			s.logger.Warn().
				Err(lastErr).
				Str("container", container).
				Int("attempt", attempt).
				Msg("storage: put failed, retrying")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
		}
	}
	return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, lastErr)
}

// applyTransparencyPolicy decodes the image and scans its alpha channel. A
// payload that cannot be decoded is stored as-is; transparency preservation
// only overrides the requested format when it can actually be established.
func (s *Store) applyTransparencyPolicy(data []byte, contentType string) ([]byte, string, bool) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		s.logger.Warn().Err(err).Msg("storage: image payload not decodable, skipping transparency scan")
		return data, contentType, false
	}
	if !hasNonOpaquePixel(img) {
		return data, contentType, false
	}
	if format != "png" {
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			s.logger.Warn().Err(err).Msg("storage: lossless re-encode failed, keeping original payload")
			return data, contentType, true
		}
		data = buf.Bytes()
	}
	return data, losslessPNG, true
}

func hasNonOpaquePixel(img image.Image) bool {
	// Fast path: formats without an alpha channel are opaque by definition.
	if opaquer, ok := img.(interface{ Opaque() bool }); ok {
		return !opaquer.Opaque()
	}
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a < 0xffff {
				return true
			}
		}
	}
	return false
}

func (s *Store) container(kind domain.MediaKind) (string, error) {
	switch kind {
	case domain.MediaKindImage:
		return s.imageContainer, nil
	case domain.MediaKindVideo:
		return s.videoContainer, nil
	default:
		return "", fmt.Errorf("%w: unsupported kind %q", domain.ErrInvalidRequest, kind)
	}
}

func storagePath(artifactID, suggestedName, contentType string, createdAt time.Time) string {
	name := strings.TrimSpace(suggestedName)
	if name != "" {
		name = strings.ReplaceAll(name, "/", "-")
		name = "-" + strings.TrimSuffix(name, extensionForMIME(contentType))
	}
	return fmt.Sprintf("%s/%s%s%s", createdAt.UTC().Format("2006/01"), artifactID, name, extensionForMIME(contentType))
}

func extensionForMIME(mime string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	default:
		return ".bin"
	}
}
