package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/clinovate/bpadvisor/internal/knowledge"
	"github.com/clinovate/bpadvisor/internal/observability/metrics"
)

// KnowledgeHandler serves corpus search and document lookup.
type KnowledgeHandler struct {
	ix      *knowledge.Index
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewKnowledgeHandler creates the handler.
func NewKnowledgeHandler(ix *knowledge.Index, m *metrics.Metrics, logger *zap.Logger) *KnowledgeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KnowledgeHandler{ix: ix, metrics: m, logger: logger}
}

// Routes returns the knowledge subtree.
func (h *KnowledgeHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/search", h.Search)
	r.Get("/docs/{id}", h.Doc)
	return r
}

// Search handles GET /knowledge/search?q=...&limit=N.
func (h *KnowledgeHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		respondError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}

	limit := 5
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 50 {
			respondError(w, http.StatusBadRequest, "limit must be between 1 and 50")
			return
		}
		limit = n
	}

	if h.metrics != nil {
		h.metrics.KnowledgeQueries.Inc()
	}
	respondJSON(w, http.StatusOK, h.ix.Search(q, limit))
}

// Doc handles GET /knowledge/docs/{id}.
func (h *KnowledgeHandler) Doc(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.ix.Get(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, http.StatusNotFound, "document not found")
		return
	}
	respondJSON(w, http.StatusOK, doc)
}
