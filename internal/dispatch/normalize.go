package dispatch

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"mediagen/internal/domain"
)

// Normalize reduces a provider response of any shape to the fixed internal
// result record. Optional fields (usage, warnings) degrade to absent with a
// recorded warning instead of failing; the only hard failure is a response
// that carries no artifact payload at all.
//
// The input may be raw JSON bytes, an already-decoded mapping, or an
// attribute-bearing struct. A single capability probe converts all three to
// one generic view; every field access after that is best effort.
func Normalize(providerName string, raw any) (*domain.NormalizedResult, error) {
	view, err := genericView(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedProviderResponse, err)
	}

	result := &domain.NormalizedResult{}

	result.Artifacts = extractArtifacts(view)
	if len(result.Artifacts) == 0 {
		return nil, fmt.Errorf("%w: provider %s returned no artifact payload", domain.ErrMalformedProviderResponse, providerName)
	}

	result.Usage = extractUsage(view, &result.Warnings)
	result.Warnings = append(result.Warnings, extractProviderWarnings(view)...)
	result.RawMetadata = extractMetadata(view)

	return result, nil
}

// genericView flattens the supported input shapes into a plain mapping.
func genericView(raw any) (map[string]any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, fmt.Errorf("nil response")
	case map[string]any:
		return v, nil
	case json.RawMessage:
		return decodeJSONMap(v)
	case []byte:
		return decodeJSONMap(v)
	case string:
		return decodeJSONMap([]byte(v))
	default:
		// Attribute-bearing object: a JSON round trip is the one capability
		// probe; field lookup stays uniform afterwards.
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("unsupported response shape %T", raw)
		}
		return decodeJSONMap(data)
	}
}

func decodeJSONMap(data []byte) (map[string]any, error) {
	var view map[string]any
	if err := json.Unmarshal(data, &view); err != nil {
		return nil, fmt.Errorf("undecodable response body")
	}
	return view, nil
}

// extractArtifacts walks the artifact layouts observed across providers:
// Gemini candidates/parts with inline or file data, long-running video
// responses, and flat data/artifacts arrays.
func extractArtifacts(view map[string]any) []domain.ResultArtifact {
	var out []domain.ResultArtifact

	// Long-running operations nest the result under "response".
	if nested, ok := view["response"].(map[string]any); ok {
		out = append(out, extractArtifacts(nested)...)
	}

	for _, candidate := range sliceField(view, "candidates") {
		content, _ := candidate["content"].(map[string]any)
		if content == nil {
			continue
		}
		for _, part := range sliceField(content, "parts") {
			if artifact, ok := artifactFromPart(part); ok {
				out = append(out, artifact)
			}
		}
	}

	if video, ok := view["video"].(map[string]any); ok {
		if uri := stringField(video, "uri", "url"); uri != "" {
			out = append(out, domain.ResultArtifact{RemoteURL: uri, MIME: stringField(video, "mimeType", "mime_type")})
		}
	}
	for _, sample := range sliceField(view, "generatedSamples", "generated_samples", "generatedVideos") {
		video, _ := sample["video"].(map[string]any)
		if video == nil {
			continue
		}
		if uri := stringField(video, "uri", "url"); uri != "" {
			out = append(out, domain.ResultArtifact{RemoteURL: uri, MIME: stringField(video, "mimeType", "mime_type")})
		}
	}

	for _, item := range sliceField(view, "artifacts", "data", "images") {
		if encoded := stringField(item, "b64_json", "base64", "data"); encoded != "" {
			if data, err := base64.StdEncoding.DecodeString(encoded); err == nil && len(data) > 0 {
				out = append(out, domain.ResultArtifact{Data: data, MIME: stringField(item, "mimeType", "mime_type", "content_type")})
				continue
			}
		}
		if uri := stringField(item, "url", "uri"); uri != "" {
			out = append(out, domain.ResultArtifact{RemoteURL: uri, MIME: stringField(item, "mimeType", "mime_type", "content_type")})
		}
	}

	return out
}

func artifactFromPart(part map[string]any) (domain.ResultArtifact, bool) {
	if inline, ok := part["inlineData"].(map[string]any); ok {
		encoded := stringField(inline, "data")
		if data, err := base64.StdEncoding.DecodeString(encoded); err == nil && len(data) > 0 {
			return domain.ResultArtifact{Data: data, MIME: stringField(inline, "mimeType", "mime_type")}, true
		}
	}
	if file, ok := part["fileData"].(map[string]any); ok {
		if uri := stringField(file, "fileUri", "file_uri", "uri"); uri != "" {
			return domain.ResultArtifact{RemoteURL: uri, MIME: stringField(file, "mimeType", "mime_type")}, true
		}
	}
	return domain.ResultArtifact{}, false
}

// extractUsage pulls token consumption out of whichever usage layout the
// provider chose. A malformed usage block never aborts normalization; each
// unavailable sub-field defaults to absent and leaves a warning behind.
func extractUsage(view map[string]any, warnings *[]string) *domain.Usage {
	var block any
	var key string
	for _, k := range []string{"usage", "usageMetadata", "usage_metadata"} {
		if v, ok := view[k]; ok {
			block, key = v, k
			break
		}
	}
	if block == nil {
		return nil
	}

	fields, ok := block.(map[string]any)
	if !ok {
		*warnings = append(*warnings, fmt.Sprintf("unreadable %s field in provider response", key))
		return nil
	}

	usage := &domain.Usage{}
	if tokens, found := intField(fields, "tokensConsumed", "tokens_consumed", "totalTokenCount", "total_token_count", "total_tokens", "totalTokens"); found {
		usage.TokensConsumed = &tokens
	} else if len(fields) > 0 {
		*warnings = append(*warnings, fmt.Sprintf("no readable token count in %s", key))
	}
	return usage
}

func extractProviderWarnings(view map[string]any) []string {
	raw, ok := view["warnings"].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range raw {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// extractMetadata keeps the light top-level fields for diagnostics, dropping
// the payload-bearing keys already lifted into Artifacts.
func extractMetadata(view map[string]any) map[string]any {
	skip := map[string]bool{
		"candidates": true, "data": true, "artifacts": true, "images": true,
		"response": true, "video": true, "generatedSamples": true,
		"generated_samples": true, "generatedVideos": true,
	}
	meta := make(map[string]any)
	for k, v := range view {
		if skip[k] {
			continue
		}
		meta[k] = v
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

func sliceField(view map[string]any, keys ...string) []map[string]any {
	for _, key := range keys {
		raw, ok := view[key].([]any)
		if !ok {
			continue
		}
		var out []map[string]any
		for _, item := range raw {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

func stringField(view map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := view[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func intField(view map[string]any, keys ...string) (int, bool) {
	for _, key := range keys {
		switch v := view[key].(type) {
		case float64:
			return int(v), true
		case int:
			return v, true
		case string:
			if n, err := strconv.Atoi(v); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}
