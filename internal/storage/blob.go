package storage

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"mediagen/internal/domain"
)

// BlobCredentials identify the store against a remote blob service. Exactly
// one construction path fills them: parsing a pre-shared connection secret,
// or the discrete account/key/endpoint triple. There is no fallback between
// the two; misconfiguration fails at construction.
type BlobCredentials struct {
	Account   string
	AccessKey []byte
	Endpoint  string
}

// ParseConnectionSecret decodes the single-string credential form:
// "endpoint=https://…;account=name;key=base64…".
func ParseConnectionSecret(secret string) (BlobCredentials, error) {
	creds := BlobCredentials{}
	for _, segment := range strings.Split(secret, ";") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		name, value, found := strings.Cut(segment, "=")
		if !found {
			return BlobCredentials{}, fmt.Errorf("%w: malformed connection secret segment %q", domain.ErrCredentialConfiguration, name)
		}
		switch strings.ToLower(name) {
		case "endpoint":
			creds.Endpoint = value
		case "account":
			creds.Account = value
		case "key":
			key, err := base64.StdEncoding.DecodeString(value)
			if err != nil {
				return BlobCredentials{}, fmt.Errorf("%w: access key is not valid base64", domain.ErrCredentialConfiguration)
			}
			creds.AccessKey = key
		}
	}
	return creds, creds.validate()
}

// NewBlobCredentials builds credentials from the discrete triple.
func NewBlobCredentials(account, accessKey, endpoint string) (BlobCredentials, error) {
	key, err := base64.StdEncoding.DecodeString(accessKey)
	if err != nil {
		return BlobCredentials{}, fmt.Errorf("%w: access key is not valid base64", domain.ErrCredentialConfiguration)
	}
	creds := BlobCredentials{Account: account, AccessKey: key, Endpoint: endpoint}
	return creds, creds.validate()
}

func (c BlobCredentials) validate() error {
	if c.Account == "" || len(c.AccessKey) == 0 || c.Endpoint == "" {
		return fmt.Errorf("%w: account, key and endpoint are all required", domain.ErrCredentialConfiguration)
	}
	if !strings.HasPrefix(c.Endpoint, "http://") && !strings.HasPrefix(c.Endpoint, "https://") {
		return fmt.Errorf("%w: endpoint must be an http(s) URL", domain.ErrCredentialConfiguration)
	}
	return nil
}

// BlobClient talks to a remote blob service: PUT/GET/DELETE by container and
// path, authenticated per request, with SAS-style signed read URLs minted
// locally from the account key.
type BlobClient struct {
	creds      BlobCredentials
	httpClient *http.Client
}

// NewBlobClient constructs a client over the given credentials. A nil HTTP
// client gets a bounded-timeout default.
func NewBlobClient(creds BlobCredentials, httpClient *http.Client) (*BlobClient, error) {
	if err := creds.validate(); err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &BlobClient{creds: creds, httpClient: httpClient}, nil
}

func (c *BlobClient) Put(ctx context.Context, container, path string, data []byte, contentType string) error {
	req, err := c.newRequest(ctx, http.MethodPut, container, path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	_, err = c.do(req, http.StatusCreated, http.StatusOK)
	return err
}

func (c *BlobClient) Get(ctx context.Context, container, path string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, container, path, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req, http.StatusOK)
}

// Delete removes the blob; a 404 from the service is treated as success.
func (c *BlobClient) Delete(ctx context.Context, container, path string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, container, path, nil)
	if err != nil {
		return err
	}
	_, err = c.do(req, http.StatusOK, http.StatusNoContent, http.StatusAccepted, http.StatusNotFound)
	return err
}

// SignReadURL mints a shared-access URL scoped to reads of one blob. The seal
// covers the read permission, the path and the expiry, so the URL stops
// working at expiry no matter what this process does afterwards.
func (c *BlobClient) SignReadURL(container, path string, expiresAt time.Time) (string, error) {
	key, err := joinKey(container, path)
	if err != nil {
		return "", err
	}
	exp := strconv.FormatInt(expiresAt.Unix(), 10)
	mac := hmac.New(sha256.New, c.creds.AccessKey)
	fmt.Fprintf(mac, "r\n/%s/%s\n%s", c.creds.Account, key, exp)
	sig := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("%s/%s?sp=r&se=%s&sig=%s",
		strings.TrimRight(c.creds.Endpoint, "/"), key, url.QueryEscape(exp), sig), nil
}

func (c *BlobClient) newRequest(ctx context.Context, method, container, path string, body io.Reader) (*http.Request, error) {
	key, err := joinKey(container, path)
	if err != nil {
		return nil, err
	}
	endpoint := strings.TrimRight(c.creds.Endpoint, "/") + "/" + key
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, c.creds.AccessKey)
	fmt.Fprintf(mac, "%s\n/%s/%s\n%s", method, c.creds.Account, key, ts)
	req.Header.Set("X-Auth-Account", c.creds.Account)
	req.Header.Set("X-Auth-Timestamp", ts)
	req.Header.Set("X-Auth-Signature", hex.EncodeToString(mac.Sum(nil)))
	return req, nil
}

func (c *BlobClient) do(req *http.Request, okStatuses ...int) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	defer resp.Body.Close()

	for _, status := range okStatuses {
		if resp.StatusCode == status {
			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil, fmt.Errorf("%w: read response: %v", domain.ErrStorageUnavailable, err)
			}
			return data, nil
		}
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrBlobNotFound
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return nil, fmt.Errorf("%w: status %d: %s", domain.ErrStorageUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
}

var _ Backend = (*BlobClient)(nil)
