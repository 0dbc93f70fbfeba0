package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowOrigin   string
	AllowMethods  []string
	AllowHeaders  []string
	ExposeHeaders []string
	MaxAge        int
}

// DefaultCORSConfig allows the control page to be served from anywhere. The
// preview frame counter is exposed so a remote page can detect stale frames.
func DefaultCORSConfig(origin string) CORSConfig {
	if origin == "" {
		origin = "*"
	}
	return CORSConfig{
		AllowOrigin:   origin,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders:  []string{"Content-Type", "Authorization", "Accept", "Last-Event-ID"},
		ExposeHeaders: []string{"X-Frame-Count"},
		MaxAge:        86400,
	}
}

// headerSet is the fixed list of CORS response headers for a config.
type headerSet [][2]string

func (c CORSConfig) headers() headerSet {
	h := headerSet{
		{"Access-Control-Allow-Origin", c.AllowOrigin},
		{"Access-Control-Allow-Methods", strings.Join(c.AllowMethods, ", ")},
		{"Access-Control-Allow-Headers", strings.Join(c.AllowHeaders, ", ")},
		{"Access-Control-Max-Age", strconv.Itoa(c.MaxAge)},
	}
	if len(c.ExposeHeaders) > 0 {
		h = append(h, [2]string{"Access-Control-Expose-Headers", strings.Join(c.ExposeHeaders, ", ")})
	}
	if c.AllowOrigin != "*" {
		h = append(h, [2]string{"Vary", "Origin"})
	}
	return h
}

// NewCORSMiddleware sets CORS headers on every huma operation and answers
// preflights with 204.
func NewCORSMiddleware(config CORSConfig) func(huma.Context, func(huma.Context)) {
	headers := config.headers()
	return func(ctx huma.Context, next func(huma.Context)) {
		for _, kv := range headers {
			ctx.SetHeader(kv[0], kv[1])
		}
		if ctx.Method() == http.MethodOptions {
			ctx.SetStatus(http.StatusNoContent)
			return
		}
		next(ctx)
	}
}

// AddCORSHandler answers preflights for every path on mux. Huma only routes
// the methods an operation registered, so OPTIONS never reaches the
// middleware.
func AddCORSHandler(mux *http.ServeMux, config CORSConfig) {
	headers := config.headers()
	mux.HandleFunc("OPTIONS /", func(w http.ResponseWriter, _ *http.Request) {
		for _, kv := range headers {
			w.Header().Set(kv[0], kv[1])
		}
		w.WriteHeader(http.StatusNoContent)
	})
}
