package storage

import (
	"context"
	"fmt"
	"time"

	"mediagen/internal/domain"
)

// TokenIssuer mints short-lived read tokens for stored artifacts. Issuance is
// stateless: tokens are never persisted or revoked, each one is self-expiring
// and scoped to reads of a single artifact. Re-issuing before expiry simply
// yields an independent token.
type TokenIssuer struct {
	artifacts domain.ArtifactRepository
	backend   Backend
	maxTTL    time.Duration

	now func() time.Time
}

// NewTokenIssuer constructs an issuer whose tokens never outlive maxTTL.
func NewTokenIssuer(artifacts domain.ArtifactRepository, backend Backend, maxTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		artifacts: artifacts,
		backend:   backend,
		maxTTL:    maxTTL,
		now:       time.Now,
	}
}

// Issue returns a token expiring exactly ttl from now, with ttl clamped to
// the configured maximum. No token is minted for content that cannot be
// served: an unknown artifact fails with the not-found classification.
func (i *TokenIssuer) Issue(ctx context.Context, artifactID string, ttl time.Duration) (*domain.AccessToken, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("%w: ttl must be positive", domain.ErrInvalidRequest)
	}
	if ttl > i.maxTTL {
		ttl = i.maxTTL
	}

	artifact, err := i.artifacts.GetByID(ctx, artifactID)
	if err != nil {
		return nil, err
	}

	expiresAt := i.now().Add(ttl)
	signedURL, err := i.backend.SignReadURL(artifact.ContainerKey, artifact.StoragePath, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("sign url: %w", err)
	}

	return &domain.AccessToken{
		ArtifactID: artifactID,
		ExpiresAt:  expiresAt,
		SignedURL:  signedURL,
	}, nil
}
