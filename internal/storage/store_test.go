package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mediagen/internal/adapter/repo"
	"mediagen/internal/domain"
	"mediagen/internal/infra"
)

type flakyBackend struct {
	inner    Backend
	putFails int
	putCalls int
	deleted  []string
}

func (b *flakyBackend) Put(ctx context.Context, container, path string, data []byte, contentType string) error {
	b.putCalls++
	if b.putCalls <= b.putFails {
		return errors.New("connection reset")
	}
	return b.inner.Put(ctx, container, path, data, contentType)
}

func (b *flakyBackend) Get(ctx context.Context, container, path string) ([]byte, error) {
	return b.inner.Get(ctx, container, path)
}

func (b *flakyBackend) Delete(ctx context.Context, container, path string) error {
	b.deleted = append(b.deleted, container+"/"+path)
	return b.inner.Delete(ctx, container, path)
}

func (b *flakyBackend) SignReadURL(container, path string, expiresAt time.Time) (string, error) {
	return b.inner.SignReadURL(container, path, expiresAt)
}

type failingArtifactRepo struct {
	domain.ArtifactRepository
}

func (r failingArtifactRepo) Create(ctx context.Context, artifact *domain.Artifact) error {
	return errors.New("row insert failed")
}

func newTestStore(t *testing.T) (*Store, *flakyBackend) {
	t.Helper()
	inner, err := NewFileBackend(t.TempDir(), "http://localhost:8080/files", []byte("test-signing-key"))
	if err != nil {
		t.Fatal(err)
	}
	backend := &flakyBackend{inner: inner}
	store := NewStore(backend, repo.NewMemoryArtifactRepository(), "images", "videos", infra.Logger(zerolog.New(io.Discard)))
	store.retryBase = time.Millisecond
	n := 0
	store.newID = func() string { n++; return fmt.Sprintf("art-%d", n) }
	store.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return store, backend
}

func opaqueJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func transparentGIF(t *testing.T) []byte {
	t.Helper()
	palette := color.Palette{color.RGBA{}, color.RGBA{R: 0xff, A: 0xff}}
	img := image.NewPaletted(image.Rect(0, 0, 2, 2), palette)
	img.SetColorIndex(0, 0, 0) // fully transparent pixel
	img.SetColorIndex(1, 1, 1)
	var buf bytes.Buffer
	if err := gif.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestPutGetRoundtrip(t *testing.T) {
	store, _ := newTestStore(t)
	data := []byte("not really an mp4")

	artifact, err := store.Put(context.Background(), PutInput{
		Kind:        domain.MediaKindVideo,
		Data:        data,
		ContentType: "video/mp4",
		SourceJobID: "job-9",
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if artifact.ContainerKey != "videos" {
		t.Fatalf("container = %q", artifact.ContainerKey)
	}
	if artifact.ByteSize != int64(len(data)) {
		t.Fatalf("byte size = %d", artifact.ByteSize)
	}
	if !strings.HasSuffix(artifact.StoragePath, ".mp4") {
		t.Fatalf("storage path %q missing extension", artifact.StoragePath)
	}
	if !strings.HasPrefix(artifact.StoragePath, "2025/06/") {
		t.Fatalf("storage path %q not date partitioned", artifact.StoragePath)
	}

	got, err := store.Get(context.Background(), artifact.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("roundtrip bytes differ")
	}

	desc, err := store.Describe(context.Background(), artifact.ID)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if desc.SourceJobID != "job-9" {
		t.Fatalf("source job id = %q", desc.SourceJobID)
	}
}

func TestPutEmptyPayloadRejected(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Put(context.Background(), PutInput{Kind: domain.MediaKindImage, ContentType: "image/png"})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("err = %v, want invalid request", err)
	}
}

func TestPutRetriesTransientBackendFailure(t *testing.T) {
	store, backend := newTestStore(t)
	backend.putFails = 2

	artifact, err := store.Put(context.Background(), PutInput{
		Kind:        domain.MediaKindVideo,
		Data:        []byte("payload"),
		ContentType: "video/mp4",
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if backend.putCalls != 3 {
		t.Fatalf("put calls = %d, want 3", backend.putCalls)
	}
	if _, err := store.Get(context.Background(), artifact.ID); err != nil {
		t.Fatalf("Get after retried put: %v", err)
	}
}

func TestPutExhaustedRetriesClassifiedAsStorage(t *testing.T) {
	store, backend := newTestStore(t)
	backend.putFails = 10

	_, err := store.Put(context.Background(), PutInput{
		Kind:        domain.MediaKindVideo,
		Data:        []byte("payload"),
		ContentType: "video/mp4",
	})
	if !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Fatalf("err = %v, want storage unavailable", err)
	}
	if backend.putCalls != 3 {
		t.Fatalf("put calls = %d, want bounded retries", backend.putCalls)
	}
}

func TestRowFailureRemovesOrphanedBlob(t *testing.T) {
	inner, err := NewFileBackend(t.TempDir(), "http://localhost:8080/files", []byte("test-signing-key"))
	if err != nil {
		t.Fatal(err)
	}
	backend := &flakyBackend{inner: inner}
	store := NewStore(backend, failingArtifactRepo{}, "images", "videos", infra.Logger(zerolog.New(io.Discard)))
	store.retryBase = time.Millisecond

	_, err = store.Put(context.Background(), PutInput{
		Kind:        domain.MediaKindVideo,
		Data:        []byte("payload"),
		ContentType: "video/mp4",
	})
	if !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Fatalf("err = %v, want storage unavailable", err)
	}
	if len(backend.deleted) != 1 {
		t.Fatalf("blob cleanup calls = %d, want 1", len(backend.deleted))
	}
}

func TestTransparencyForcesLosslessFormat(t *testing.T) {
	store, _ := newTestStore(t)

	artifact, err := store.Put(context.Background(), PutInput{
		Kind:        domain.MediaKindImage,
		Data:        transparentGIF(t),
		ContentType: "image/gif",
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if artifact.ContentType != "image/png" {
		t.Fatalf("content type = %q, want forced image/png", artifact.ContentType)
	}
	if !artifact.Transparency {
		t.Fatal("transparency flag not set")
	}

	data, err := store.Get(context.Background(), artifact.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Fatalf("stored payload is not png: %v", err)
	}
}

func TestOpaqueImageKeepsRequestedType(t *testing.T) {
	store, _ := newTestStore(t)
	data := opaqueJPEG(t)

	artifact, err := store.Put(context.Background(), PutInput{
		Kind:        domain.MediaKindImage,
		Data:        data,
		ContentType: "image/jpeg",
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if artifact.ContentType != "image/jpeg" {
		t.Fatalf("content type = %q, want image/jpeg untouched", artifact.ContentType)
	}
	if artifact.Transparency {
		t.Fatal("opaque image flagged transparent")
	}

	got, err := store.Get(context.Background(), artifact.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("opaque payload was re-encoded")
	}
}

func TestUndecodableImageStoredAsIs(t *testing.T) {
	store, _ := newTestStore(t)
	data := []byte("definitely not pixels")

	artifact, err := store.Put(context.Background(), PutInput{
		Kind:        domain.MediaKindImage,
		Data:        data,
		ContentType: "image/webp",
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if artifact.ContentType != "image/webp" || artifact.Transparency {
		t.Fatalf("undecodable payload altered: type %q transparency %v", artifact.ContentType, artifact.Transparency)
	}
	got, err := store.Get(context.Background(), artifact.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("undecodable payload bytes changed")
	}
}

func TestDeleteIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	artifact, err := store.Put(context.Background(), PutInput{
		Kind:        domain.MediaKindVideo,
		Data:        []byte("payload"),
		ContentType: "video/mp4",
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := store.Delete(context.Background(), artifact.ID); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := store.Delete(context.Background(), artifact.ID); err != nil {
		t.Fatalf("second delete not idempotent: %v", err)
	}
	if err := store.Delete(context.Background(), "never-existed"); err != nil {
		t.Fatalf("delete of unknown id: %v", err)
	}

	if _, err := store.Get(context.Background(), artifact.ID); !errors.Is(err, domain.ErrArtifactNotFound) {
		t.Fatalf("get after delete = %v, want not found", err)
	}
}
