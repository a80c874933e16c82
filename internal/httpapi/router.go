// Package httpapi assembles the public HTTP surface of the service.
package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"manimd/internal/config"
	"manimd/internal/httpapi/handlers"
	"manimd/internal/httpkit"
	"manimd/internal/pkg/middleware"
)

// NewRouter builds the route tree with the full middleware stack.
func NewRouter(d handlers.Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if d.Log != nil {
		r.Use(middleware.Logging(d.Log))
		r.Use(middleware.Recovery(d.Log))
	}
	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins: envCSV("CORS_ALLOWED_ORIGINS", []string{"*"}),
	}))

	h := handlers.New(d)

	r.Get("/health", h.Health)
	r.Post("/render", h.PostRender)
	r.Get("/status/{jobID}", h.GetStatus)
	r.Get("/download/{jobID}", h.Download)
	r.Post("/cancel/{jobID}", h.Cancel)

	return r
}

func envCSV(key string, def []string) []string {
	raw := config.Env(key, "")
	if raw == "" {
		return def
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
