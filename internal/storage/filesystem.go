package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// FileBackend persists blobs onto the local filesystem. It is intended for
// development and test environments where an object storage service is not
// available. Signed URLs point at the application's own /files route and are
// verified with an HMAC over path and expiry, so expiry holds regardless of
// application behavior.
type FileBackend struct {
	basePath   string
	baseURL    string
	signingKey []byte
}

// NewFileBackend initializes a FileBackend rooted at basePath. baseURL is the
// public prefix signed URLs are built on; signingKey seals them.
func NewFileBackend(basePath, baseURL string, signingKey []byte) (*FileBackend, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if len(signingKey) == 0 {
		return nil, errors.New("storage: signing key is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &FileBackend{
		basePath:   basePath,
		baseURL:    strings.TrimRight(baseURL, "/"),
		signingKey: signingKey,
	}, nil
}

// Put writes data at container/path, creating directories as needed.
func (b *FileBackend) Put(ctx context.Context, container, path string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := b.resolve(container, path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("storage: ensure directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("storage: write file: %w", err)
	}
	return nil
}

// Get reads the bytes at container/path.
func (b *FileBackend) Get(ctx context.Context, container, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := b.resolve(container, path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("storage: read file: %w", err)
	}
	return data, nil
}

// Delete removes container/path. A missing file is a no-op success.
func (b *FileBackend) Delete(ctx context.Context, container, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := b.resolve(container, path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: remove file: %w", err)
	}
	return nil
}

// SignReadURL produces a read-only URL carrying an expiry and an HMAC seal.
func (b *FileBackend) SignReadURL(container, path string, expiresAt time.Time) (string, error) {
	key, err := joinKey(container, path)
	if err != nil {
		return "", err
	}
	exp := strconv.FormatInt(expiresAt.Unix(), 10)
	sig := b.seal(key, exp)
	return fmt.Sprintf("%s/%s?se=%s&sig=%s", b.baseURL, key, url.QueryEscape(exp), sig), nil
}

// Signed URL verification failures, distinguished so the serving route can
// answer 403 versus 410.
var (
	ErrBadSignature = errors.New("storage: invalid signature")
	ErrURLExpired   = errors.New("storage: url expired")
)

// VerifySignedPath checks an se/sig pair against a key at the given instant.
// It rejects bad seals before expired ones so a tampered expiry never leaks
// which check failed.
func (b *FileBackend) VerifySignedPath(key, exp, sig string, now time.Time) error {
	expected := b.seal(key, exp)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return ErrBadSignature
	}
	unix, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return ErrBadSignature
	}
	if !now.Before(time.Unix(unix, 0)) {
		return ErrURLExpired
	}
	return nil
}

// Open returns the bytes for a verified signed key.
func (b *FileBackend) Open(ctx context.Context, key string) ([]byte, error) {
	parts := strings.SplitN(key, "/", 2)
	if len(parts) != 2 {
		return nil, ErrBlobNotFound
	}
	return b.Get(ctx, parts[0], parts[1])
}

func (b *FileBackend) seal(key, exp string) string {
	mac := hmac.New(sha256.New, b.signingKey)
	mac.Write([]byte("r\n" + key + "\n" + exp))
	return hex.EncodeToString(mac.Sum(nil))
}

func (b *FileBackend) resolve(container, path string) (string, error) {
	key, err := joinKey(container, path)
	if err != nil {
		return "", err
	}
	return filepath.Join(b.basePath, filepath.FromSlash(key)), nil
}

// joinKey normalizes container/path and prevents escaping the storage root.
func joinKey(container, path string) (string, error) {
	container = strings.Trim(strings.TrimSpace(container), "/")
	path = strings.TrimLeft(strings.TrimSpace(path), "/")
	if container == "" || path == "" {
		return "", errors.New("storage: container and path are required")
	}
	key := container + "/" + strings.ReplaceAll(path, "\\", "/")
	cleaned := filepath.ToSlash(filepath.Clean(key))
	if cleaned == "." || strings.HasPrefix(cleaned, "../") || strings.Contains(cleaned, "/../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}

var _ Backend = (*FileBackend)(nil)
