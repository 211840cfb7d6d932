package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/cutmassively/cutm/internal/ledger"
	"github.com/go-chi/chi/v5"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))
	r.Get("/status", statusHandler(cfg))
	r.Get("/runs", listRunsHandler(cfg))
	r.Get("/runs/{id}", getRunHandler(cfg))

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: uptime,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Stats == nil {
			WriteError(w, http.StatusServiceUnavailable, "no run in progress", "UNAVAILABLE")
			return
		}
		snap := cfg.Stats.Snapshot()
		WriteJSON(w, http.StatusOK, StatusResponse{
			RunID:       cfg.RunID,
			SourceVideo: cfg.SourceVideo,
			Total:       snap.Total,
			Ready:       snap.Ready,
			Uploaded:    snap.Uploaded,
			Failed:      snap.Failed,
			Current:     snap.Current,
			StartedAt:   snap.StartedAt.UTC().Format(time.RFC3339),
			ElapsedS:    int64(snap.Elapsed.Seconds()),
		})
	}
}

func listRunsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Runs == nil {
			WriteError(w, http.StatusNotFound, "run ledger disabled", "NOT_FOUND")
			return
		}

		limit := ledger.DefaultHistoryLimit
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 {
				WriteError(w, http.StatusBadRequest, "limit must be a positive integer", "BAD_REQUEST")
				return
			}
			limit = n
		}

		runs, err := cfg.Runs.ListRuns(r.Context(), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list runs", "INTERNAL_ERROR")
			return
		}

		resp := RunsResponse{Runs: make([]RunResponse, len(runs))}
		for i, run := range runs {
			resp.Runs[i] = RunToResponse(run)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getRunHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Runs == nil {
			WriteError(w, http.StatusNotFound, "run ledger disabled", "NOT_FOUND")
			return
		}

		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "run id required", "BAD_REQUEST")
			return
		}

		run, err := cfg.Runs.GetRun(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if run == nil {
			WriteError(w, http.StatusNotFound, "run not found", "NOT_FOUND")
			return
		}

		frags, err := cfg.Runs.ListFragments(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		resp := RunDetailResponse{
			RunResponse: RunToResponse(run),
			Fragments:   make([]FragmentResponse, len(frags)),
		}
		for i, f := range frags {
			resp.Fragments[i] = FragmentToResponse(f)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}
