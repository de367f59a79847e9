package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mediagen/internal/domain"
	"mediagen/internal/infra"
	"mediagen/internal/providers"
)

// Options controls how the client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client is a lightweight facade over the Gemini generateContent and
// long-running operations APIs. It returns raw response documents so the
// normalizer downstream owns all shape tolerance; the client's only jobs are
// transport, authentication and error classification.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

type generateContentRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts,omitempty"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type generationConfig struct {
	CandidateCount   int    `json:"candidateCount,omitempty"`
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type operationEnvelope struct {
	Name     string          `json:"name"`
	Done     bool            `json:"done"`
	Response json.RawMessage `json:"response,omitempty"`
	Error    *struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error,omitempty"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Status  string `json:"status,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// NewClient constructs a client with sane defaults. Callers may provide a nil
// HTTP client; a reusable one with a bounded timeout will be created.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	model := opts.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}

	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("genai: api key is required")
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Name identifies the provider for normalization routing.
func (c *Client) Name() string { return "genai" }

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// Generate performs a synchronous image generation call and returns the raw
// response body.
func (c *Client) Generate(ctx context.Context, params providers.CallParameters) (json.RawMessage, error) {
	payload := buildGeneratePayload(params)
	model := stringParam(params, "model", c.model)

	raw, err := c.invoke(ctx, http.MethodPost, fmt.Sprintf("/models/%s:generateContent", url.PathEscape(model)), payload)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("model", model).
		Int("response_bytes", len(raw)).
		Msg("genai: image generation call completed")
	return raw, nil
}

// Start begins a long-running video generation operation and returns the
// provider's operation name as the correlation id.
func (c *Client) Start(ctx context.Context, params providers.CallParameters) (string, error) {
	payload := buildGeneratePayload(params)
	model := stringParam(params, "model", c.model)

	raw, err := c.invoke(ctx, http.MethodPost, fmt.Sprintf("/models/%s:predictLongRunning", url.PathEscape(model)), payload)
	if err != nil {
		return "", err
	}

	var op operationEnvelope
	if err := json.Unmarshal(raw, &op); err != nil {
		return "", fmt.Errorf("%w: undecodable operation envelope", domain.ErrMalformedProviderResponse)
	}
	if op.Name == "" {
		return "", fmt.Errorf("%w: operation name missing", domain.ErrMalformedProviderResponse)
	}

	c.logger.Debug().
		Str("model", model).
		Str("operation", op.Name).
		Msg("genai: video operation started")
	return op.Name, nil
}

// Poll queries a long-running operation by name.
func (c *Client) Poll(ctx context.Context, providerJobID string) (*providers.JobStatus, error) {
	raw, err := c.invoke(ctx, http.MethodGet, "/"+strings.TrimLeft(providerJobID, "/"), nil)
	if err != nil {
		return nil, err
	}

	var op operationEnvelope
	if err := json.Unmarshal(raw, &op); err != nil {
		return nil, fmt.Errorf("%w: undecodable operation envelope", domain.ErrMalformedProviderResponse)
	}

	status := &providers.JobStatus{State: providers.JobStateRunning}
	if op.Error != nil {
		status.State = providers.JobStateFailed
		status.Message = op.Error.Message
		return status, nil
	}
	if op.Done {
		status.State = providers.JobStateSucceeded
		status.Payload = op.Response
	}
	return status, nil
}

func buildGeneratePayload(params providers.CallParameters) generateContentRequest {
	parts := []part{{Text: stringParam(params, "prompt", "")}}
	if refs, ok := params["reference_assets"].([]providers.ReferenceAsset); ok {
		for _, ref := range refs {
			mime := ref.MIME
			if mime == "" {
				mime = "image/png"
			}
			parts = append(parts, part{InlineData: &inlineData{
				MimeType: mime,
				Data:     base64.StdEncoding.EncodeToString(ref.Data),
			}})
		}
	}
	payload := generateContentRequest{
		Contents: []content{{Role: "user", Parts: parts}},
	}
	cfg := &generationConfig{}
	if count, ok := params["count"].(int); ok && count > 1 {
		cfg.CandidateCount = count
	}
	if mime := stringParam(params, "output_format", ""); mime != "" {
		cfg.ResponseMimeType = mime
	}
	if cfg.CandidateCount > 0 || cfg.ResponseMimeType != "" {
		payload.GenerationConfig = cfg
	}
	return payload
}

func (c *Client) invoke(ctx context.Context, method, path string, payload any) (json.RawMessage, error) {
	endpoint := c.baseURL + path
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	q := req.URL.Query()
	q.Set("key", c.apiKey)
	req.URL.RawQuery = q.Encode()
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrProviderUnavailable, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, classifyHTTPError(resp, data)
	}
	return data, nil
}

// classifyHTTPError maps transport-level failures onto the error taxonomy so
// callers can branch without inspecting HTTP details.
func classifyHTTPError(resp *http.Response, body []byte) error {
	message := fmt.Sprintf("status %d", resp.StatusCode)
	var decoded apiError
	if err := json.Unmarshal(body, &decoded); err == nil && decoded.Error.Message != "" {
		message = decoded.Error.Message
	} else if len(body) > 0 {
		message = strings.TrimSpace(string(body))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &domain.RateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %s", domain.ErrProviderUnavailable, message)
	default:
		return fmt.Errorf("%w: %s", domain.ErrProviderRejected, message)
	}
}

func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func stringParam(params providers.CallParameters, key, fallback string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

var (
	_ providers.ImageProvider = (*Client)(nil)
	_ providers.VideoProvider = (*Client)(nil)
)
