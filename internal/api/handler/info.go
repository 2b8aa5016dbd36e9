package handler

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/version"
	apperrors "github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/logger"
)

const maxVocabularyListing = 1000

func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "Friends Word2Vec API"})
}

func (h *Handler) Version(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"version": version.Version,
		"commit":  version.Commit,
		"status":  "loading",
	}
	if snap, err := h.vocab.Current(); err == nil {
		body["status"] = "ready"
		body["vocabulary_version"] = snap.Version
	}
	h.writeJSON(w, http.StatusOK, body)
}

var endpoints = [][2]string{
	{"/", "Welcome message."},
	{"/similar?character=NAME&topn=N", "Top N tokens most similar to NAME, with scores."},
	{"/similarity?character1=A&character2=B", "Similarity score between A and B (0-100 scale)."},
	{"/traits?character=NAME&topn=N", "Top N tokens most similar to NAME, without scores."},
	{"/match?name=NAME&topn=N", "Top N closest characters to NAME, with scores."},
	{"/analogy?positive_character=A&negative_character=B", "Tokens closest to A - B. Also accepts positive=a,b&negative=c and topn."},
	{"/odd_one_out?characters=A,B,C", "The token that fits least with the rest."},
	{"/visualize?characters=A,B,C", "2-D PCA coordinates of the given tokens as JSON."},
	{"/visualize_image?char1=A&char2=B&char3=C", "PNG scatter plot of the tokens projected to 2-D."},
	{"/vocabulary?prefix=P&limit=N", "Vocabulary size and dimension, optionally listing tokens starting with P."},
	{"/version", "Service version."},
	{"/help", "This listing."},
}

func (h *Handler) Help(w http.ResponseWriter, r *http.Request) {
	listing := make(map[string]string, len(endpoints))
	for _, e := range endpoints {
		listing[e[0]] = e[1]
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Welcome to the Friends Word2Vec API. Here are the available endpoints:",
		"endpoints": listing,
		"note":      "Tokens are matched case-insensitively. Words not in the vocabulary return 404.",
	})
}

// VocabularyInfo handles GET /vocabulary. With a prefix parameter it also
// lists matching tokens in lexical order, up to limit.
func (h *Handler) VocabularyInfo(w http.ResponseWriter, r *http.Request) {
	snap, err := h.vocab.Current()
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), apperrors.Detail(err))
		return
	}
	body := map[string]any{
		"size":      snap.Store.Size(),
		"dimension": snap.Store.Dimension(),
		"version":   snap.Version,
		"source":    snap.Source,
		"loaded_at": snap.LoadedAt.Format(time.RFC3339),
	}

	q := r.URL.Query()
	if q.Has("prefix") {
		limit := 100
		if raw := q.Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = min(n, maxVocabularyListing)
		}
		prefix := h.normalize(q.Get("prefix"))
		tokens := snap.Store.Tokens()
		matched := make([]string, 0, limit)
		for i := sort.SearchStrings(tokens, prefix); i < len(tokens) && len(matched) < limit; i++ {
			if !strings.HasPrefix(tokens[i], prefix) {
				break
			}
			matched = append(matched, tokens[i])
		}
		body["tokens"] = matched
	}
	h.writeJSON(w, http.StatusOK, body)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":      hits,
		"misses":    misses,
		"total":     total,
		"hit_rate":  fmt.Sprintf("%.1f%%", hitRate),
		"available": h.cache.Available(),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

// Reload handles POST /api/v1/admin/reload. A failed reload leaves the
// current vocabulary serving.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	snap, err := h.vocab.Reload(r.Context())
	if err != nil {
		log.Error("vocabulary reload failed", "error", err)
		h.writeError(w, http.StatusServiceUnavailable, "reload failed: "+err.Error())
		return
	}
	log.Info("vocabulary reloaded via admin endpoint", "version", snap.Version)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "reloaded",
		"version":   snap.Version,
		"size":      snap.Store.Size(),
		"dimension": snap.Store.Dimension(),
	})
}
