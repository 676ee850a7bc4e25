package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORS lets browser clients on other origins (the kiosk scanner page, the
// counselor inbox) call the API.
type CORS struct {
	Origins []string
	Methods []string
	Headers []string
	MaxAge  time.Duration
}

// CORSFromList splits a comma separated origin list. "*" allows any origin.
func CORSFromList(raw string) CORS {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return CORS{
		Origins: origins,
		Methods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		Headers: []string{"Authorization", "Content-Type", RequestIDHeader},
		MaxAge:  10 * time.Minute,
	}
}

// WithCORS is a no-op without origins. Preflight requests from an allowed
// origin are answered here and never reach the router.
func WithCORS(cfg CORS) Middleware {
	if len(cfg.Origins) == 0 {
		return nil
	}
	methods := strings.Join(cfg.Methods, ", ")
	headers := strings.Join(cfg.Headers, ", ")
	maxAge := strconv.Itoa(int(cfg.MaxAge.Seconds()))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" || !allowedOrigin(origin, cfg.Origins) {
				next.ServeHTTP(w, r)
				return
			}
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", methods)
				h.Set("Access-Control-Allow-Headers", headers)
				h.Set("Access-Control-Max-Age", maxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func allowedOrigin(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}
