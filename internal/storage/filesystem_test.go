package storage

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"
)

func newTestFileBackend(t *testing.T) *FileBackend {
	t.Helper()
	backend, err := NewFileBackend(t.TempDir(), "http://localhost:8080/files", []byte("test-signing-key"))
	if err != nil {
		t.Fatal(err)
	}
	return backend
}

func TestFileBackendRoundtrip(t *testing.T) {
	backend := newTestFileBackend(t)
	ctx := context.Background()
	data := []byte{0x89, 'P', 'N', 'G'}

	if err := backend.Put(ctx, "images", "2025/06/a.png", data, "image/png"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := backend.Get(ctx, "images", "2025/06/a.png")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("roundtrip bytes differ")
	}

	if err := backend.Delete(ctx, "images", "2025/06/a.png"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := backend.Get(ctx, "images", "2025/06/a.png"); !errors.Is(err, ErrBlobNotFound) {
		t.Fatalf("get after delete = %v, want blob not found", err)
	}
	// Deleting what is already gone stays a success.
	if err := backend.Delete(ctx, "images", "2025/06/a.png"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestFileBackendRejectsTraversal(t *testing.T) {
	backend := newTestFileBackend(t)
	ctx := context.Background()

	cases := []struct{ container, path string }{
		{"images", "../../etc/passwd"},
		{"..", "secret"},
		{"images", ""},
		{"", "a.png"},
	}
	for _, tc := range cases {
		if err := backend.Put(ctx, tc.container, tc.path, []byte("x"), ""); err == nil {
			t.Fatalf("Put(%q, %q) accepted a bad key", tc.container, tc.path)
		}
	}
}

func TestSignedURLVerification(t *testing.T) {
	backend := newTestFileBackend(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	expiresAt := now.Add(10 * time.Minute)

	signed, err := backend.SignReadURL("images", "2025/06/a.png", expiresAt)
	if err != nil {
		t.Fatalf("SignReadURL: %v", err)
	}
	if !strings.HasPrefix(signed, "http://localhost:8080/files/images/2025/06/a.png?") {
		t.Fatalf("unexpected url shape: %q", signed)
	}

	parsed, err := url.Parse(signed)
	if err != nil {
		t.Fatal(err)
	}
	key := strings.TrimPrefix(parsed.Path, "/files/")
	exp := parsed.Query().Get("se")
	sig := parsed.Query().Get("sig")

	if err := backend.VerifySignedPath(key, exp, sig, now); err != nil {
		t.Fatalf("verification before expiry: %v", err)
	}
	if err := backend.VerifySignedPath(key, exp, sig, expiresAt.Add(time.Second)); err == nil {
		t.Fatal("expired url accepted")
	}
	if err := backend.VerifySignedPath(key, exp, "deadbeef", now); err == nil {
		t.Fatal("tampered signature accepted")
	}
	if err := backend.VerifySignedPath("images/2025/06/other.png", exp, sig, now); err == nil {
		t.Fatal("signature accepted for a different key")
	}
}
