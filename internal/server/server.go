package server

import (
	"log"
	"net/http"
	"time"

	"github.com/corvino/jamq/internal/session"
)

// New creates the host's HTTP server with all routes registered. ws serves
// the peer websocket endpoint and may be nil when clients join over p2p.
// logger may be nil.
func New(host *session.Host, ws http.Handler, addr string, logger *log.Logger) *http.Server {
	if logger == nil {
		logger = log.Default()
	}
	h := &Handlers{
		Host:      host,
		StartTime: time.Now(),
	}
	return &http.Server{
		Addr:         addr,
		Handler:      loggingMiddleware(logger, corsMiddleware(Routes(h, ws))),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Routes registers the API on a new mux.
func Routes(h *Handlers, ws http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", h.Health)
	mux.HandleFunc("GET /api/session", h.Session)
	mux.HandleFunc("GET /api/queue", h.GetQueue)
	mux.HandleFunc("POST /api/queue", h.Enqueue)
	mux.HandleFunc("GET /api/endpoints", h.ListEndpoints)

	// Playback control.
	mux.HandleFunc("POST /api/skip", h.Skip)
	mux.HandleFunc("POST /api/playpause", h.PlayPause)
	mux.HandleFunc("POST /api/stop", h.Stop)

	if ws != nil {
		mux.Handle("GET /ws", ws)
	}
	return mux
}

func loggingMiddleware(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start).Round(time.Microsecond))
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
