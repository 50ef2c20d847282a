package review

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadcheck/internal/model"
	"github.com/sells-group/leadcheck/internal/store"
)

// operatorHeader names the operator on mutating requests for the audit trail.
const operatorHeader = "X-Operator"

// NewRouter builds the review queue HTTP API.
func NewRouter(svc *Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", operatorHeader},
	}))

	h := &handler{svc: svc}
	r.Get("/healthz", h.health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/reviews", h.listReviews)
		r.Post("/reviews/{businessID}/decision", h.decide)
	})
	return r
}

type handler struct {
	svc *Service
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) listReviews(w http.ResponseWriter, r *http.Request) {
	filter := store.ReviewFilter{Limit: 50}

	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 200 {
			writeError(w, http.StatusBadRequest, "limit must be an integer between 1 and 200")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "page must be a positive integer")
			return
		}
		filter.Offset = (n - 1) * filter.Limit
	}
	if v := q.Get("has_site"); v != "" {
		hasSite, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "has_site must be a boolean")
			return
		}
		filter.HasGeneratedSite = &hasSite
	}

	items, err := h.svc.ListPending(r.Context(), filter)
	if err != nil {
		zap.L().Error("list reviews failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list pending reviews")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

func (h *handler) decide(w http.ResponseWriter, r *http.Request) {
	businessID := chi.URLParam(r, "businessID")

	var decision model.ReviewDecision
	if err := json.NewDecoder(r.Body).Decode(&decision); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if decision.Operator == "" {
		decision.Operator = r.Header.Get(operatorHeader)
	}
	if decision.Operator == "" {
		writeError(w, http.StatusBadRequest, "operator is required (body field or X-Operator header)")
		return
	}

	b, err := h.svc.Decide(r.Context(), businessID, decision)
	if err != nil {
		switch {
		case eris.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "business not found")
		case eris.Is(err, ErrNotPendingReview):
			writeError(w, http.StatusConflict, "business is not pending review")
		case eris.Is(err, ErrMissingURL):
			writeError(w, http.StatusBadRequest, "valid_website decision requires a url")
		default:
			zap.L().Error("decision failed",
				zap.String("business_id", businessID),
				zap.Error(err),
			)
			writeError(w, http.StatusInternalServerError, "failed to apply decision")
		}
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Warn("write response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
