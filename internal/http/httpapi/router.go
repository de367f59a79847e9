package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"mediagen/internal/http/handlers"
	"mediagen/internal/middleware"
)

// Options tunes the transport layer; zero values disable the optional parts.
type Options struct {
	AllowedOrigins []string
	GenerateLimit  int // requests per client IP per minute on /v1/generate
}

func NewRouter(app *handlers.App, logger zerolog.Logger, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(logger),
	)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(opts.AllowedOrigins))
	}

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/generate", func(r chi.Router) {
		if opts.GenerateLimit > 0 {
			r.Use(middleware.RateLimit(opts.GenerateLimit, time.Minute))
		}
		r.Post("/", app.Generate)
	})

	r.Route("/v1/jobs", func(r chi.Router) {
		r.Get("/{id}", app.JobStatus)
		r.Post("/{id}/cancel", app.JobCancel)
	})

	r.Route("/v1/artifacts", func(r chi.Router) {
		r.Post("/", app.ArtifactUpload)
		r.Get("/zip", app.ArtifactsZip)
		r.Get("/{id}", app.ArtifactGet)
		r.Delete("/{id}", app.ArtifactDelete)
		r.Post("/{id}/access-url", app.ArtifactAccessURL)
		r.Get("/{id}/download", app.ArtifactDownload)
	})

	r.Get("/v1/gallery", app.Gallery)

	if app.Files != nil {
		r.Get("/files/*", app.ServeSignedFile)
	}

	return r
}
