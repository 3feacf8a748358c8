// Package devserver is a development backend: a REST API over the job store
// that announces every mutation on the push hub.
package devserver

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dthanhvu03/threadsauto-sub000/internal/datasource"
	"github.com/dthanhvu03/threadsauto-sub000/internal/domain"
	"github.com/dthanhvu03/threadsauto-sub000/internal/hooks"
	"github.com/dthanhvu03/threadsauto-sub000/internal/logging"
	"github.com/dthanhvu03/threadsauto-sub000/internal/metrics"
	"github.com/dthanhvu03/threadsauto-sub000/internal/realtime"
	"github.com/dthanhvu03/threadsauto-sub000/internal/storage"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
	maxBodyBytes    = 1 << 20
)

// Config wires a Server.
type Config struct {
	Store *storage.Store
	Hub   *realtime.Hub
	// Token, when set, is required as a bearer token on /api and /ws.
	Token string
	// Gatherer exposes /metrics when set.
	Gatherer prometheus.Gatherer
	// RateLimitEvery answers every n-th list request with 429, for
	// exercising client backoff. Zero disables it.
	RateLimitEvery int
	RetryAfter     time.Duration
	// Hooks runs scripts around mutations. Nil disables them.
	Hooks  *hooks.Runner
	Logger logging.Logger
}

// Server serves the REST API and the websocket push endpoint.
type Server struct {
	cfg       Config
	log       logging.Logger
	listCalls atomic.Int64
}

// New returns a server for cfg. Store and Hub are required.
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil || cfg.Hub == nil {
		return nil, fmt.Errorf("devserver: store and hub are required")
	}
	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = 2 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Nop()
	}
	return &Server{cfg: cfg, log: log.With("component", "devserver")}, nil
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
	})
	if s.cfg.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(s.cfg.Gatherer))
	}

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Handle("/ws", realtime.NewWSHandler(s.cfg.Hub, s.log))
		r.Route(datasource.JobsPath, func(r chi.Router) {
			r.Get("/", s.listJobs)
			r.Post("/", s.createJob)
			r.Get("/{id}", s.getJob)
			r.Patch("/{id}", s.updateJob)
		})
	})
	return r
}

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("dev server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.log.Info("dev server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	want := []byte("Bearer " + s.cfg.Token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Token != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), want) != 1 {
			writeError(w, "unauthorized", "missing or invalid bearer token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	if n := s.cfg.RateLimitEvery; n > 0 && s.listCalls.Add(1)%int64(n) == 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(s.cfg.RetryAfter.Seconds())))
		writeError(w, "rate_limited", "slow down", http.StatusTooManyRequests)
		return
	}

	filters, page, err := parseListQuery(r)
	if err != nil {
		writeError(w, "invalid_query", err.Error(), http.StatusBadRequest)
		return
	}
	result, err := s.cfg.Store.List(r.Context(), filters, page)
	if err != nil {
		s.log.Error("list jobs failed", "error", err)
		writeError(w, "internal", "failed to list jobs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, result, http.StatusOK)
}

func parseListQuery(r *http.Request) (domain.FilterState, domain.Pagination, error) {
	page := domain.Pagination{Page: 1, PageSize: defaultPageSize}
	patch := domain.Patch{}
	for key, values := range r.URL.Query() {
		if len(values) == 0 {
			continue
		}
		value := values[len(values)-1]
		switch key {
		case datasource.ParamPage:
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 {
				return domain.FilterState{}, page, fmt.Errorf("page must be a positive integer")
			}
			page.Page = n
		case datasource.ParamPageSize:
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 {
				return domain.FilterState{}, page, fmt.Errorf("page_size must be a positive integer")
			}
			page.PageSize = min(n, maxPageSize)
		default:
			patch[key] = value
		}
	}
	filters, warnings := domain.NewFilterState(patch)
	if len(warnings) > 0 {
		msgs := make([]string, 0, len(warnings))
		for _, w := range warnings {
			msgs = append(msgs, w.Error())
		}
		return domain.FilterState{}, page, errors.New(strings.Join(msgs, "; "))
	}
	return filters, page, nil
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.cfg.Store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, job, http.StatusOK)
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var job domain.Job
	if err := decodeBody(r, &job); err != nil {
		writeError(w, "invalid_body", err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.cfg.Hooks.Run(r.Context(), hooks.PreCreate, job); err != nil {
		writeError(w, "rejected", err.Error(), http.StatusUnprocessableEntity)
		return
	}
	created, err := s.cfg.Store.Create(r.Context(), job)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.announce(realtime.EventJobCreated, created)
	s.cfg.Hooks.Go(hooks.PostCreate, created)
	writeJSON(w, created, http.StatusCreated)
}

func (s *Server) updateJob(w http.ResponseWriter, r *http.Request) {
	var update storage.JobUpdate
	if err := decodeBody(r, &update); err != nil {
		writeError(w, "invalid_body", err.Error(), http.StatusBadRequest)
		return
	}
	updated, err := s.cfg.Store.Update(r.Context(), chi.URLParam(r, "id"), update)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.announce(realtime.EventJobUpdated, updated)
	s.cfg.Hooks.Go(hooks.PostUpdate, updated)
	writeJSON(w, updated, http.StatusOK)
}

// announce publishes the mutation to the room of the job's account.
func (s *Server) announce(event string, job domain.Job) {
	data, err := json.Marshal(job)
	if err != nil {
		s.log.Warn("encode event payload failed", "error", err)
		return
	}
	n := s.cfg.Hub.Publish(realtime.Event{
		Room:   job.AccountID,
		Name:   event,
		Data:   data,
		SentAt: time.Now().UTC(),
	})
	s.log.Debug("event published", "event", event, "room", job.AccountID, "subscribers", n)
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrJobNotFound):
		writeError(w, "not_found", err.Error(), http.StatusNotFound)
	case errors.Is(err, storage.ErrInvalidJob), errors.Is(err, storage.ErrInvalidJobID):
		writeError(w, "invalid_job", err.Error(), http.StatusBadRequest)
	default:
		s.log.Error("store operation failed", "error", err)
		writeError(w, "internal", "internal error", http.StatusInternalServerError)
	}
}

func decodeBody(r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, code, message string, statusCode int) {
	writeJSON(w, map[string]string{"code": code, "message": message}, statusCode)
}
