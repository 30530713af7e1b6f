// Package server exposes the HTTP surface: bulk availability checks, stream
// resolution, the torrent catalog and diagnostics.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dylanmazurek/resolvarr/internal/config"
	"github.com/dylanmazurek/resolvarr/internal/logger"
	"github.com/dylanmazurek/resolvarr/pkg/debrid/store"
	"github.com/dylanmazurek/resolvarr/pkg/debrid/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Resolver is the service surface the HTTP layer consumes.
type Resolver interface {
	CheckAvailability(ctx context.Context, apiKey string, hashes []string) (map[string]types.AvailabilityEntry, error)
	Resolve(ctx context.Context, token types.ResolutionToken) (string, error)
	Torrents(ctx context.Context, apiKey string) ([]*types.Torrent, error)
	Torrent(ctx context.Context, apiKey, id string) (*types.Torrent, error)
	Stats() (store.Stats, error)
}

type Server struct {
	svc    Resolver
	logger zerolog.Logger
}

func New(svc Resolver) *Server {
	return &Server{
		svc:    svc,
		logger: logger.New("server"),
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/availability", s.handleAvailability)
		r.Get("/torrents", s.handleTorrents)
		r.Get("/torrents/{id}", s.handleTorrent)
		r.Get("/logs", s.handleLogs)
		r.Get("/status", s.handleStatus)
	})

	// Legacy playback token: credential/infohash/null/fileIndex. The third
	// segment is a placeholder and is ignored.
	r.Get("/stream/{credential}/{infohash}/{placeholder}/{fileIndex}", s.handleStream)

	return r
}

// Start runs the HTTP server until the context is canceled.
func (s *Server) Start(ctx context.Context) error {
	cfg := config.Get()
	addr := fmt.Sprintf("%s:%s", cfg.BindAddress, cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.Routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

type requestIDKey struct{}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		requestID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", requestID).
			Msg("request")
	})
}

// apiKey resolves the request credential: the X-Api-Token header, falling
// back to the server-level key from config.
func (s *Server) apiKey(r *http.Request) string {
	if key := r.Header.Get("X-Api-Token"); key != "" {
		return key
	}
	return config.Get().Provider.APIKey
}

// clientIP extracts the caller address, honoring X-Forwarded-For.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
