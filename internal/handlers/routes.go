package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vidfriends/accounts/internal/apperr"
	"github.com/vidfriends/accounts/internal/config"
	"github.com/vidfriends/accounts/internal/middleware"
	"github.com/vidfriends/accounts/internal/respond"
)

// APIPrefix is the mount point of the versioned API.
const APIPrefix = "/api/v1"

// MediaPrefix is where locally published media is served.
const MediaPrefix = "/media"

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Logger   *slog.Logger
	HTTP     config.HTTPConfig
	Accounts AccountService
	Videos   VideoService
	Channels ChannelService
	Health   HealthCheck
	// MediaDir, when set, is served under MediaPrefix.
	MediaDir string
	// Registry, when set, receives HTTP metrics and is exposed at /metrics.
	Registry *prometheus.Registry
	Now      func() time.Time
}

// NewRouter builds the HTTP handler with middleware and every route.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	root := chi.NewRouter()
	root.Use(
		middleware.RequestLogger(logger),
		middleware.CORS(middleware.CORSOptions{
			Origin:  deps.HTTP.CORSOrigin,
			Methods: deps.HTTP.CORSMethods,
			Headers: deps.HTTP.CORSHeaders,
		}),
		middleware.LimitBody(middleware.BodyLimits{
			JSON:      deps.HTTP.JSONBodyLimit,
			Form:      deps.HTTP.FormBodyLimit,
			Multipart: deps.HTTP.MaxUploadBytes,
		}),
	)
	if deps.Registry != nil {
		root.Use(middleware.NewMetrics(deps.Registry).Instrument)
		root.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}
	root.NotFound(notFound)
	root.MethodNotAllowed(methodNotAllowed)

	root.Get("/healthz", handle(HealthHandler{Check: deps.Health}.Handle))
	if deps.MediaDir != "" {
		root.Handle(MediaPrefix+"/*", http.StripPrefix(MediaPrefix+"/", http.FileServer(http.Dir(deps.MediaDir))))
	}

	api := chi.NewRouter()
	api.NotFound(notFound)
	api.MethodNotAllowed(methodNotAllowed)
	registerRoutes(api, deps)
	root.Mount(APIPrefix, api)

	return root
}

func notFound(w http.ResponseWriter, r *http.Request) {
	respond.Error(r.Context(), w, apperr.NotFound("route not found"))
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	respond.Error(r.Context(), w, apperr.New(apperr.KindMethod, "method not allowed"))
}

func registerRoutes(r chi.Router, deps Dependencies) {
	users := AuthHandler{
		Accounts:  deps.Accounts,
		UploadDir: deps.HTTP.UploadDir,
		cookies:   cookieJar{secure: deps.HTTP.CookieSecure, now: deps.Now},
	}
	channels := ChannelHandler{Channels: deps.Channels}
	videos := VideoHandler{Videos: deps.Videos, UploadDir: deps.HTTP.UploadDir}
	requireAuth := middleware.RequireAuth(deps.Accounts)

	// public
	r.Post("/users/register", handle(users.Register))
	r.Post("/users/login", handle(users.Login))
	r.Post("/users/refresh-token", handle(users.Refresh))

	r.Group(func(r chi.Router) {
		r.Use(requireAuth)

		// session and profile
		r.Post("/users/logout", handle(users.Logout))
		r.Post("/users/change-password", handle(users.ChangePassword))
		r.Get("/users/current-user", handle(users.CurrentUser))
		r.Patch("/users/update-account", handle(users.UpdateAccount))
		r.Patch("/users/avatar", handle(users.UpdateAvatar))
		r.Patch("/users/cover-image", handle(users.UpdateCoverImage))

		// channels
		r.Get("/users/c/{username}", handle(channels.Profile))
		r.Get("/users/history", handle(channels.History))
		r.Post("/subscriptions/c/{username}", handle(channels.Subscribe))
		r.Delete("/subscriptions/c/{username}", handle(channels.Unsubscribe))

		// videos
		r.Post("/videos", handle(videos.Publish))
		r.Post("/videos/{videoId}/views", handle(videos.RecordView))
	})
}
