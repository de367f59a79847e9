package storage

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mediagen/internal/domain"
)

const testAccessKey = "c3VwZXItc2VjcmV0LWtleQ==" // base64("super-secret-key")

func TestParseConnectionSecret(t *testing.T) {
	creds, err := ParseConnectionSecret("endpoint=https://blobs.example.com;account=media;key=" + testAccessKey)
	if err != nil {
		t.Fatalf("ParseConnectionSecret: %v", err)
	}
	if creds.Account != "media" || creds.Endpoint != "https://blobs.example.com" {
		t.Fatalf("creds = %+v", creds)
	}
	if string(creds.AccessKey) != "super-secret-key" {
		t.Fatalf("access key = %q", creds.AccessKey)
	}
}

func TestParseConnectionSecretRejectsBadInput(t *testing.T) {
	cases := []string{
		"",
		"account=media;key=" + testAccessKey,                          // missing endpoint
		"endpoint=https://x;key=" + testAccessKey,                     // missing account
		"endpoint=https://x;account=media",                            // missing key
		"endpoint=https://x;account=media;key=!!not-base64!!",         // undecodable key
		"endpoint=ftp://x;account=media;key=" + testAccessKey,         // bad scheme
		"endpoint=https://x;account=media;key=" + testAccessKey + ";garbage-without-equals",
	}
	for _, secret := range cases {
		if _, err := ParseConnectionSecret(secret); !errors.Is(err, domain.ErrCredentialConfiguration) {
			t.Fatalf("secret %q: err = %v, want credential configuration", secret, err)
		}
	}
}

func TestNewBlobCredentialsRequiresFullTriple(t *testing.T) {
	if _, err := NewBlobCredentials("media", testAccessKey, "https://x"); err != nil {
		t.Fatalf("valid triple rejected: %v", err)
	}
	if _, err := NewBlobCredentials("", testAccessKey, "https://x"); !errors.Is(err, domain.ErrCredentialConfiguration) {
		t.Fatalf("missing account: err = %v", err)
	}
	if _, err := NewBlobCredentials("media", "", "https://x"); !errors.Is(err, domain.ErrCredentialConfiguration) {
		t.Fatalf("missing key: err = %v", err)
	}
	if _, err := NewBlobCredentials("media", testAccessKey, ""); !errors.Is(err, domain.ErrCredentialConfiguration) {
		t.Fatalf("missing endpoint: err = %v", err)
	}
}

func newTestBlobClient(t *testing.T, handler http.Handler) (*BlobClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	creds, err := NewBlobCredentials("media", testAccessKey, srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	client, err := NewBlobClient(creds, srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	return client, srv
}

func TestBlobClientPutSignsRequest(t *testing.T) {
	var gotPath, gotAccount, gotSig, gotTS string
	var gotBody []byte
	client, _ := newTestBlobClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAccount = r.Header.Get("X-Auth-Account")
		gotSig = r.Header.Get("X-Auth-Signature")
		gotTS = r.Header.Get("X-Auth-Timestamp")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))

	err := client.Put(context.Background(), "images", "2025/06/a.png", []byte("pixels"), "image/png")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if gotPath != "/images/2025/06/a.png" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAccount != "media" {
		t.Fatalf("account header = %q", gotAccount)
	}
	if string(gotBody) != "pixels" {
		t.Fatalf("body = %q", gotBody)
	}

	mac := hmac.New(sha256.New, []byte("super-secret-key"))
	fmt.Fprintf(mac, "PUT\n/media/images/2025/06/a.png\n%s", gotTS)
	if want := hex.EncodeToString(mac.Sum(nil)); gotSig != want {
		t.Fatalf("signature = %q, want %q", gotSig, want)
	}
}

func TestBlobClientGet(t *testing.T) {
	client, _ := newTestBlobClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/images/found.png" {
			w.Write([]byte("pixels"))
			return
		}
		http.NotFound(w, r)
	}))

	data, err := client.Get(context.Background(), "images", "found.png")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(data, []byte("pixels")) {
		t.Fatalf("data = %q", data)
	}

	if _, err := client.Get(context.Background(), "images", "missing.png"); !errors.Is(err, ErrBlobNotFound) {
		t.Fatalf("missing blob err = %v, want blob not found", err)
	}
}

func TestBlobClientDeleteTreatsMissingAsSuccess(t *testing.T) {
	client, _ := newTestBlobClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	if err := client.Delete(context.Background(), "images", "gone.png"); err != nil {
		t.Fatalf("Delete of missing blob: %v", err)
	}
}

func TestBlobClientServerErrorClassified(t *testing.T) {
	client, _ := newTestBlobClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusServiceUnavailable)
	}))
	if _, err := client.Get(context.Background(), "images", "a.png"); !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Fatalf("err = %v, want storage unavailable", err)
	}
}

func TestBlobClientSignReadURL(t *testing.T) {
	creds, err := NewBlobCredentials("media", testAccessKey, "https://blobs.example.com")
	if err != nil {
		t.Fatal(err)
	}
	client, err := NewBlobClient(creds, nil)
	if err != nil {
		t.Fatal(err)
	}

	expiresAt := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
	signed, err := client.SignReadURL("images", "2025/06/a.png", expiresAt)
	if err != nil {
		t.Fatalf("SignReadURL: %v", err)
	}
	if !strings.HasPrefix(signed, "https://blobs.example.com/images/2025/06/a.png?sp=r&se=") {
		t.Fatalf("unexpected url shape: %q", signed)
	}

	mac := hmac.New(sha256.New, []byte("super-secret-key"))
	fmt.Fprintf(mac, "r\n/media/images/2025/06/a.png\n%d", expiresAt.Unix())
	if want := "sig=" + hex.EncodeToString(mac.Sum(nil)); !strings.HasSuffix(signed, want) {
		t.Fatalf("url %q not sealed with account key", signed)
	}
}
