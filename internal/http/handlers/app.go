package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"mediagen/internal/domain"
	"mediagen/internal/infra"
	"mediagen/internal/service"
	"mediagen/internal/storage"
)

// App carries the handler dependencies. Files is only set when the
// filesystem backend is active; it powers the signed /files route.
type App struct {
	Service *service.Service
	Files   *storage.FileBackend
	Logger  infra.Logger
}

func NewApp(svc *service.Service, files *storage.FileBackend, logger infra.Logger) *App {
	return &App{Service: svc, Files: files, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}

// domainError translates the error taxonomy into HTTP statuses. Unclassified
// errors are logged and masked as 500s.
func (a *App) domainError(w http.ResponseWriter, err error) {
	var rle *domain.RateLimitError
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrJobNotFound), errors.Is(err, domain.ErrArtifactNotFound):
		a.error(w, http.StatusNotFound, "not_found", err.Error())
	case errors.As(err, &rle):
		if rle.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(rle.RetryAfter.Seconds())))
		}
		a.error(w, http.StatusTooManyRequests, "rate_limited", err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		a.error(w, http.StatusTooManyRequests, "rate_limited", err.Error())
	case errors.Is(err, domain.ErrProviderRejected):
		a.error(w, http.StatusUnprocessableEntity, "provider_rejected", err.Error())
	case errors.Is(err, domain.ErrProviderUnavailable), errors.Is(err, domain.ErrMalformedProviderResponse):
		a.error(w, http.StatusBadGateway, "provider_unavailable", err.Error())
	case errors.Is(err, domain.ErrStorageUnavailable):
		a.error(w, http.StatusServiceUnavailable, "storage_unavailable", err.Error())
	default:
		a.Logger.Error().Err(err).Msg("handlers: unclassified error")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
