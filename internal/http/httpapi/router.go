package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"scheduler/internal/http/handlers"
	"scheduler/internal/middleware"
)

// Options configures the control API router.
type Options struct {
	Logger          zerolog.Logger
	Metrics         http.Handler
	APIToken        string
	AllowedOrigins  []string
	RateLimitPerMin int
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
	)

	r.Get("/v1/healthz", app.Health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(
			middleware.RateLimit(opts.RateLimitPerMin, time.Minute),
			middleware.BearerToken(opts.APIToken),
		)

		r.Route("/v1/jobs", func(r chi.Router) {
			r.Post("/", app.CreateJob)
			r.Get("/", app.ListJobs)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", app.GetJob)
				r.Post("/schedule", app.ScheduleJob)
				r.Post("/start", app.StartJob)
				r.Post("/complete", app.CompleteJob)
				r.Post("/fail", app.FailJob)
			})
		})
		r.Post("/v1/poll", app.Poll)
	})

	return r
}
