// Package server exposes the archive pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Linaname/async-download-service/internal/archive"
	"github.com/Linaname/async-download-service/internal/config"
	"github.com/Linaname/async-download-service/internal/logging"
	"github.com/Linaname/async-download-service/internal/metrics"
	"github.com/Linaname/async-download-service/internal/stream"
)

// ErrShutdown is the cancellation cause seen by in-flight downloads when the
// server stops.
var ErrShutdown = errors.New("server shutting down")

// NotFoundReason is the body of the 404 response for a missing archive.
const NotFoundReason = "Archive does not exist or was deleted"

// RequestIDHeader carries the ID assigned to each archive request.
const RequestIDHeader = "X-Request-Id"

const readHeaderTimeout = 10 * time.Second

// Route describes one registered endpoint.
type Route struct {
	Method      string
	Pattern     string
	Description string
}

// Path is the pattern without mux-only syntax.
func (r Route) Path() string {
	return strings.TrimSuffix(r.Pattern, "{$}")
}

// Server serves the index page, archive downloads, metrics and health.
type Server struct {
	cfg      config.Config
	pipeline *stream.Pipeline
	metrics  *metrics.Metrics
	log      logr.Logger
	mux      *http.ServeMux
}

// New creates a Server streaming archives produced by producer.
func New(cfg config.Config, producer archive.Producer, m *metrics.Metrics, log logr.Logger) (*Server, error) {
	pipeline, err := stream.NewPipeline(stream.Options{
		RootDir:   cfg.PhotosDir,
		ChunkSize: cfg.ChunkSize,
		Delay:     cfg.Delay,
	}, producer, log.WithName("stream"))
	if err != nil {
		return nil, fmt.Errorf("creating pipeline: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		pipeline: pipeline,
		metrics:  m,
		log:      log,
		mux:      http.NewServeMux(),
	}

	handlers := map[string]http.HandlerFunc{
		"/{$}":              s.handleIndex,
		"/archive/{id}/{$}": s.handleArchive,
		"/healthz":          s.handleHealth,
		"/metrics":          m.Handler().ServeHTTP,
	}
	for _, r := range Routes() {
		s.mux.HandleFunc(r.Method+" "+r.Pattern, handlers[r.Pattern])
	}
	return s, nil
}

// Routes lists the endpoints in registration order.
func Routes() []Route {
	return []Route{
		{Method: http.MethodGet, Pattern: "/{$}", Description: "index page"},
		{Method: http.MethodGet, Pattern: "/archive/{id}/{$}", Description: "stream a zip of the directory"},
		{Method: http.MethodGet, Pattern: "/healthz", Description: "liveness probe"},
		{Method: http.MethodGet, Pattern: "/metrics", Description: "Prometheus metrics"},
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page, err := os.ReadFile(s.cfg.IndexPage)
	if err != nil {
		s.log.Error(err, "Failed to read index page", "path", s.cfg.IndexPage)
		http.Error(w, "index page unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	reqID := uuid.NewString()
	w.Header().Set(RequestIDHeader, reqID)
	log := s.log.WithValues("requestID", reqID, "id", id)

	ctx := r.Context()
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	streamDone := s.metrics.StreamStarted()
	res, err := s.pipeline.Serve(ctx, w, id)
	streamDone()

	outcome := outcomeOf(ctx, res, err)
	s.metrics.Observe(outcome, res.Chunks, res.Bytes, res.Duration)

	switch outcome {
	case metrics.OutcomeNotFound:
		log.V(logging.DEBUG).Info("Archive not found")
		http.Error(w, NotFoundReason, http.StatusNotFound)
	case metrics.OutcomeLaunchError:
		log.Error(err, "Failed to start archiver")
		http.Error(w, "failed to start archiver", http.StatusInternalServerError)
	case metrics.OutcomeDisconnected:
		log.V(logging.DEBUG).Info("Client disconnected", "chunks", res.Chunks, "bytes", res.Bytes)
	case metrics.OutcomeCancelled:
		log.V(logging.DEBUG).Info("Sending archive was cancelled", "reason", err.Error(), "chunks", res.Chunks)
	case metrics.OutcomeFailed:
		log.Error(err, "Archive stream failed", "chunks", res.Chunks)
	default:
		log.Info("Archive request finished",
			"outcome", string(outcome),
			"chunks", res.Chunks,
			"bytes", res.Bytes,
			"duration", res.Duration.String())
	}

	// A truncated body must not end with a clean terminating chunk.
	if res.Aborted && !res.Disconnected {
		panic(http.ErrAbortHandler)
	}
}

// outcomeOf classifies a Pipeline run. Anything returned after the response
// began is either a cancellation or an archiver failure.
func outcomeOf(ctx context.Context, res stream.Result, err error) metrics.Outcome {
	var launchErr *archive.LaunchError
	switch {
	case err == nil && res.Disconnected:
		return metrics.OutcomeDisconnected
	case err == nil:
		return metrics.OutcomeCompleted
	case errors.Is(err, stream.ErrNotFound):
		return metrics.OutcomeNotFound
	case errors.As(err, &launchErr):
		return metrics.OutcomeLaunchError
	case ctx.Err() != nil:
		return metrics.OutcomeCancelled
	default:
		return metrics.OutcomeFailed
	}
}

// Listen opens the configured TCP address.
func (s *Server) Listen(ctx context.Context) (net.Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", s.cfg.Addr, err)
	}
	return ln, nil
}

// Serve accepts connections on ln until ctx is done, then cancels in-flight
// downloads with ErrShutdown and waits up to the shutdown timeout for their
// handlers to return. A zero shutdown timeout closes connections at once.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	baseCtx, cancelBase := context.WithCancelCause(context.Background())
	defer cancelBase(nil)

	hs := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := hs.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.log.Info("Shutting down", "timeout", s.cfg.ShutdownTimeout.String())
		cancelBase(ErrShutdown)

		if s.cfg.ShutdownTimeout <= 0 {
			return hs.Close()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := hs.Shutdown(shutdownCtx); err != nil {
			_ = hs.Close()
			return fmt.Errorf("shutting down: %w", err)
		}
		return nil
	})
	return g.Wait()
}
