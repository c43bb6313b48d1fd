package app

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	httpserver "github.com/sharow/sharow/internal/adapter/httpserver"
	"github.com/sharow/sharow/internal/adapter/observability"
	"github.com/sharow/sharow/internal/config"
)

// LocalUploadsPath serves blobs written by the local store when Cloudinary is not configured.
const LocalUploadsPath = "/uploads"

// ParseOrigins splits a comma-separated origin list into a slice, trimming spaces.
// Credentialed CORS cannot use "*", so an empty list falls back to the frontend origin.
func ParseOrigins(s, fallback string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" && p != "*" {
			out = append(out, p)
		}
	}
	if len(out) == 0 && fallback != "" {
		out = append(out, fallback)
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.TraceMiddleware)
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)
	r.Use(httpserver.TimeoutMiddleware(cfg.HTTPRequestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins, cfg.FrontendURL),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	limitByIP := httprate.LimitByIP(cfg.RateLimitPerMin, time.Minute)

	r.Route("/v1", func(v1 chi.Router) {
		v1.Route("/auth", func(a chi.Router) {
			a.Use(limitByIP)
			a.Post("/signup", srv.SignupHandler())
			a.Post("/signup/verify", srv.VerifySignupHandler())
			a.Post("/signup/resend", srv.ResendOTPHandler())
			a.Post("/login", srv.LoginHandler())
			a.Post("/refresh", srv.RefreshHandler())
			a.Post("/logout", srv.LogoutHandler())
		})
		v1.Route("/oauth/{provider}", func(o chi.Router) {
			o.Use(limitByIP)
			o.Get("/", srv.OAuthStartHandler())
			o.Get("/callback", srv.OAuthCallbackHandler())
		})
		v1.Group(func(p chi.Router) {
			p.Use(srv.RequireAuth)
			p.Get("/bills", srv.ListBillsHandler())
			p.Get("/bills/{billId}", srv.GetBillHandler())
			p.Group(func(m chi.Router) {
				m.Use(limitByIP)
				m.Post("/files", srv.UploadHandler())
				m.Post("/bills/analyze", srv.AnalyzeHandler())
				m.Post("/bills/chat", srv.ChatHandler())
			})
		})
	})

	r.Get("/healthz", srv.HealthzHandler())
	r.Get("/readyz", srv.ReadyzHandler())
	r.Handle("/metrics", promhttp.Handler())
	if !cfg.CloudinaryEnabled() {
		files := http.FileServer(noDirFS{http.Dir(cfg.StorageDir)})
		r.Handle(LocalUploadsPath+"/*", http.StripPrefix(LocalUploadsPath+"/", files))
	}

	return otelhttp.NewHandler(httpserver.SecurityHeaders(r), "http.server",
		otelhttp.WithFilter(func(req *http.Request) bool { return req.URL.Path != "/metrics" }))
}

// noDirFS hides directories so stored bills cannot be listed.
type noDirFS struct{ fs http.FileSystem }

func (n noDirFS) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if st.IsDir() {
		_ = f.Close()
		return nil, os.ErrNotExist
	}
	return f, nil
}
