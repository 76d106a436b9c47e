// Package httpapi serves saved snapshots as read-only JSON.
package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/KaramelBytes/trialfunnel-cli/internal/aggregate"
	"github.com/KaramelBytes/trialfunnel-cli/internal/snapshot"
)

// Store is the subset of snapshot.Store the router reads from.
type Store interface {
	List() ([]snapshot.Summary, error)
	Load(id string) (*snapshot.Snapshot, error)
	Latest() (*snapshot.Snapshot, error)
}

// NewRouter wires the routes. A nil metrics handler leaves /metrics unmounted.
func NewRouter(log *slog.Logger, st Store, metrics http.Handler) http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.Recoverer)
	mux.Use(requestLogger(log))

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if metrics != nil {
		mux.Method(http.MethodGet, "/metrics", metrics)
	}

	mux.Route("/snapshots", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			list, err := st.List()
			if err != nil {
				writeError(w, r, err)
				return
			}
			writeJSON(w, r, http.StatusOK, list)
		})
		r.Get("/latest", func(w http.ResponseWriter, r *http.Request) {
			s, err := st.Latest()
			if err != nil {
				writeError(w, r, err)
				return
			}
			writeJSON(w, r, http.StatusOK, s)
		})
		r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
			s, err := st.Load(chi.URLParam(r, "id"))
			if err != nil {
				writeError(w, r, err)
				return
			}
			writeJSON(w, r, http.StatusOK, s)
		})
		r.Get("/{id}/metrics", func(w http.ResponseWriter, r *http.Request) {
			s, err := st.Load(chi.URLParam(r, "id"))
			if err != nil {
				writeError(w, r, err)
				return
			}
			if s.Output == nil {
				writeJSON(w, r, http.StatusOK, []any{})
				return
			}
			q := r.URL.Query()
			writeJSON(w, r, http.StatusOK, aggregate.Select(s.Output.ProcessedData, q.Get("teacher"), q.Get("location"), q.Get("period")))
		})
	})
	return mux
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info("http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.String("rid", middleware.GetReqID(r.Context())),
				slog.Duration("latency", time.Since(start)))
		})
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, snapshot.ErrNotFound) {
		status = http.StatusNotFound
	}
	writeJSON(w, r, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}
