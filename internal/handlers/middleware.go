package handlers

import (
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/ksuid"
)

func EnableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequestLogger tags every request with a ksuid and stores a logger carrying it in
// the request context.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := ksuid.New().String()
		logger := log.With().
			Str("component", "DIGIT_HTTP").
			Str("request_id", requestID).
			Logger()

		w.Header().Set("X-Request-Id", requestID)
		logger.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("request")

		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context())))
	})
}
