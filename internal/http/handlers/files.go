package handlers

import (
	"errors"
	"mime"
	"net/http"
	"path"
	"time"

	"github.com/go-chi/chi/v5"

	"mediagen/internal/storage"
)

// ServeSignedFile serves blobs for the filesystem backend. The request must
// carry the se/sig pair minted by SignReadURL; anything else is rejected
// before touching disk.
func (a *App) ServeSignedFile(w http.ResponseWriter, r *http.Request) {
	if a.Files == nil {
		a.error(w, http.StatusNotFound, "not_found", "file serving is not enabled")
		return
	}
	key := chi.URLParam(r, "*")
	q := r.URL.Query()

	err := a.Files.VerifySignedPath(key, q.Get("se"), q.Get("sig"), time.Now())
	switch {
	case errors.Is(err, storage.ErrURLExpired):
		a.error(w, http.StatusGone, "expired", "url has expired")
		return
	case err != nil:
		a.error(w, http.StatusForbidden, "forbidden", "invalid signature")
		return
	}

	data, err := a.Files.Open(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "no such file")
			return
		}
		a.domainError(w, err)
		return
	}

	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		w.Header().Set("Content-Type", ct)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.Header().Set("Cache-Control", "private, max-age=60")
	_, _ = w.Write(data)
}
