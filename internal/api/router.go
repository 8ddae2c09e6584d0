package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"hliquity_mirror/internal/domain"
	"hliquity_mirror/internal/engine"
	"hliquity_mirror/internal/service"
	"hliquity_mirror/pkg/quant"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const maxChangesLimit = 500

// StateSource serves copies of the latest mirrored state.
type StateSource interface {
	Snapshot() (engine.MirrorState, bool)
}

// Deps collects what the HTTP surface reads from.
type Deps struct {
	State    StateSource
	Previews *service.PreviewService // nil disables /summary and /preview
	Changes  domain.ChangeRepository // nil when the journal is disabled
	Feed     http.HandlerFunc        // nil disables /api/v1/ws
	Metrics  http.Handler            // nil disables /metrics
	Service  string
}

// NewRouter builds the read-only HTTP surface of the mirror.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_, loaded := d.State.Snapshot()
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": d.Service, "loaded": loaded})
	})

	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if d.Feed != nil {
			// Long-lived socket: keep it out of the request timeout.
			r.Get("/ws", d.Feed)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(10 * time.Second))
			r.Get("/state", stateHandler(d.State))
			r.Get("/changes", changesHandler(d.Changes))

			if d.Previews != nil {
				r.Get("/summary", summaryHandler(d.Previews))
				r.Get("/preview/trove", trovePreviewHandler(d.Previews))
				r.Get("/preview/deposit", depositPreviewHandler(d.Previews))
				r.Get("/preview/stake", stakePreviewHandler(d.Previews))
			}
		})
	})

	return r
}

func stateHandler(src StateSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, ok := src.Snapshot()
		if !ok {
			writeError(w, http.StatusServiceUnavailable, domain.ErrNotLoaded.Error())
			return
		}
		writeJSON(w, http.StatusOK, state)
	}
}

func changesHandler(repo domain.ChangeRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			writeError(w, http.StatusNotFound, "journal disabled")
			return
		}

		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = min(n, maxChangesLimit)
		}

		recs, err := repo.Recent(limit)
		if err != nil {
			slog.Error("Journal read failed", slog.Any("error", err))
			writeError(w, http.StatusInternalServerError, "journal read failed")
			return
		}
		if recs == nil {
			recs = []domain.ChangeRecord{}
		}
		writeJSON(w, http.StatusOK, recs)
	}
}

func summaryHandler(svc *service.PreviewService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sum, err := svc.GetSummary()
		respond(w, sum, err)
	}
}

func trovePreviewHandler(svc *service.PreviewService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		collateral, ok := amountParam(w, r, "collateral")
		if !ok {
			return
		}
		debt, ok := amountParam(w, r, "debt")
		if !ok {
			return
		}
		p, err := svc.PreviewTrove(domain.Trove{Collateral: collateral, Debt: debt})
		respond(w, p, err)
	}
}

func depositPreviewHandler(svc *service.PreviewService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target, ok := amountParam(w, r, "hchf")
		if !ok {
			return
		}
		p, err := svc.PreviewDeposit(target)
		respond(w, p, err)
	}
}

func stakePreviewHandler(svc *service.PreviewService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target, ok := amountParam(w, r, "amount")
		if !ok {
			return
		}
		p, err := svc.PreviewStake(target)
		respond(w, p, err)
	}
}

// amountParam reads a required finite decimal query parameter, writing a 400 on failure.
func amountParam(w http.ResponseWriter, r *http.Request, name string) (quant.Decimal, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		writeError(w, http.StatusBadRequest, name+" is required")
		return quant.Zero, false
	}
	v, err := quant.Parse(raw)
	if err != nil || v.Infinite() {
		writeError(w, http.StatusBadRequest, name+" must be a non-negative decimal")
		return quant.Zero, false
	}
	return v, true
}

func respond(w http.ResponseWriter, v any, err error) {
	switch {
	case errors.Is(err, domain.ErrNotLoaded):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		slog.Error("Request failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		writeJSON(w, http.StatusOK, v)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Response encode failed", slog.Any("error", err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
