package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/api/cache"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/api/render"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/embedding/engine"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/embedding/projection"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/embedding/similarity"
)

// scored encodes a match as a [token, score] pair.
type scored similarity.Match

func (s scored) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{s.Token, s.Score})
}

func pairs(matches []similarity.Match) []scored {
	out := make([]scored, len(matches))
	for i, m := range matches {
		out[i] = scored(m)
	}
	return out
}

func tokensOf(matches []similarity.Match) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.Token
	}
	return out
}

// mostSimilar is shared by /similar, /traits and /match so they share cache
// entries.
func (c *call) mostSimilar(ctx context.Context, snap *engine.Snapshot, token string, topN int) ([]similarity.Match, error) {
	key := cache.Key(snap.Version, "most_similar", token, strconv.Itoa(topN))
	matches, hit, err := cache.Fetch(ctx, c.h.cache, key, func() ([]similarity.Match, error) {
		return snap.Similarity.MostSimilar(token, topN)
	})
	c.hit = hit
	return matches, err
}

// neighbours parses the token and topn shared by the neighbour endpoints and
// ranks them.
func (h *Handler) neighbours(c *call, names []string, defTopN int) (string, []similarity.Match, error) {
	q := c.r.URL.Query()
	raw, err := required(q, names...)
	if err != nil {
		return "", nil, err
	}
	token := h.normalize(raw)
	c.tokens = []string{token}
	topN, err := h.topN(q, defTopN)
	if err != nil {
		return raw, nil, err
	}
	snap, err := c.snapshot()
	if err != nil {
		return raw, nil, err
	}
	matches, err := c.mostSimilar(c.r.Context(), snap, token, topN)
	return raw, matches, err
}

// Similar handles GET /similar?character=&topn=.
func (h *Handler) Similar(w http.ResponseWriter, r *http.Request) {
	c := h.begin(w, r, analytics.OpSimilar)
	raw, matches, err := h.neighbours(c, []string{"character", "word"}, h.query.DefaultTopN)
	if err != nil {
		c.fail(err)
		return
	}
	c.ok(map[string]any{"Character": raw, "similar": pairs(matches)}, len(matches))
}

// Traits handles GET /traits?character=&topn=, returning neighbour tokens
// only.
func (h *Handler) Traits(w http.ResponseWriter, r *http.Request) {
	c := h.begin(w, r, analytics.OpTraits)
	raw, matches, err := h.neighbours(c, []string{"character", "name"}, h.query.DefaultTopN)
	if err != nil {
		c.fail(err)
		return
	}
	c.ok(map[string]any{"character": raw, "traits": tokensOf(matches)}, len(matches))
}

// Match handles GET /match?name=&topn=.
func (h *Handler) Match(w http.ResponseWriter, r *http.Request) {
	c := h.begin(w, r, analytics.OpMatch)
	raw, matches, err := h.neighbours(c, []string{"name", "character"}, h.query.MatchTopN)
	if err != nil {
		c.fail(err)
		return
	}
	c.ok(map[string]any{"character": raw, "most_similar_characters": pairs(matches)}, len(matches))
}

// Similarity handles GET /similarity?character1=&character2=.
func (h *Handler) Similarity(w http.ResponseWriter, r *http.Request) {
	c := h.begin(w, r, analytics.OpSimilarity)
	q := r.URL.Query()
	raw1, err := required(q, "character1", "char1")
	if err != nil {
		c.fail(err)
		return
	}
	raw2, err := required(q, "character2", "char2")
	if err != nil {
		c.fail(err)
		return
	}
	a, b := h.normalize(raw1), h.normalize(raw2)
	c.tokens = []string{a, b}

	snap, err := c.snapshot()
	if err != nil {
		c.fail(err)
		return
	}
	score, hit, err := cache.Fetch(r.Context(), h.cache, cache.Key(snap.Version, "similarity", a, b), func() (float64, error) {
		return snap.Similarity.Pairwise(a, b)
	})
	c.hit = hit
	if err != nil {
		c.fail(err)
		return
	}
	c.ok(map[string]any{"Character 1": raw1, "Character 2": raw2, "similarity": score}, 1)
}

// Analogy handles GET /analogy. positive_character and negative_character
// name single tokens; positive and negative take comma-separated lists and
// are appended to them.
func (h *Handler) Analogy(w http.ResponseWriter, r *http.Request) {
	c := h.begin(w, r, analytics.OpAnalogy)
	q := r.URL.Query()
	positive := append(h.splitList(q.Get("positive_character")), h.splitList(q.Get("positive"))...)
	negative := append(h.splitList(q.Get("negative_character")), h.splitList(q.Get("negative"))...)
	c.tokens = append(append([]string{}, positive...), negative...)

	topN, err := h.topN(q, h.query.AnalogyTopN)
	if err != nil {
		c.fail(err)
		return
	}
	snap, err := c.snapshot()
	if err != nil {
		c.fail(err)
		return
	}
	key := cache.Key(snap.Version, "analogy", strings.Join(positive, ","), strings.Join(negative, ","), strconv.Itoa(topN))
	matches, hit, err := cache.Fetch(r.Context(), h.cache, key, func() ([]similarity.Match, error) {
		return snap.Solver.Analogy(positive, negative, topN)
	})
	c.hit = hit
	if err != nil {
		c.fail(err)
		return
	}
	c.ok(map[string]any{"result": pairs(matches)}, len(matches))
}

// OddOneOut handles GET /odd_one_out?characters=a,b,c.
func (h *Handler) OddOneOut(w http.ResponseWriter, r *http.Request) {
	c := h.begin(w, r, analytics.OpOddOneOut)
	raw, err := required(r.URL.Query(), "characters", "words")
	if err != nil {
		c.fail(err)
		return
	}
	words := h.splitList(raw)
	c.tokens = words

	snap, err := c.snapshot()
	if err != nil {
		c.fail(err)
		return
	}
	odd, hit, err := cache.Fetch(r.Context(), h.cache, cache.Key(snap.Version, "outlier", words...), func() (string, error) {
		return snap.Solver.Outlier(words)
	})
	c.hit = hit
	if err != nil {
		c.fail(err)
		return
	}
	c.ok(map[string]any{"words": words, "odd_one_out": odd}, 1)
}

// projectionTokens collects tokens from the characters list and the
// numbered character1..3 (or char1..3) parameters.
func (h *Handler) projectionTokens(r *http.Request) []string {
	q := r.URL.Query()
	tokens := h.splitList(q.Get("characters"))
	for i := 1; i <= 3; i++ {
		n := strconv.Itoa(i)
		if v := param(q, "character"+n, "char"+n); v != "" {
			tokens = append(tokens, h.normalize(v))
		}
	}
	return tokens
}

// Visualize handles GET /visualize, returning projected coordinates as JSON.
func (h *Handler) Visualize(w http.ResponseWriter, r *http.Request) {
	c := h.begin(w, r, analytics.OpProject)
	c.tokens = h.projectionTokens(r)
	snap, err := c.snapshot()
	if err != nil {
		c.fail(err)
		return
	}
	proj, hit, err := cache.Fetch(r.Context(), h.cache, cache.Key(snap.Version, "project", c.tokens...), func() (*projection.Projection, error) {
		return projection.Project2D(snap.Store, c.tokens)
	})
	c.hit = hit
	if err != nil {
		c.fail(err)
		return
	}
	c.ok(proj, len(proj.Points))
}

// VisualizeImage handles GET /visualize_image, returning a PNG scatter plot.
func (h *Handler) VisualizeImage(w http.ResponseWriter, r *http.Request) {
	c := h.begin(w, r, analytics.OpProject)
	c.tokens = h.projectionTokens(r)
	snap, err := c.snapshot()
	if err != nil {
		c.fail(err)
		return
	}
	img, hit, err := cache.Fetch(r.Context(), h.cache, cache.Key(snap.Version, "project_png", c.tokens...), func() ([]byte, error) {
		proj, err := projection.Project2D(snap.Store, c.tokens)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := render.ScatterPNG(&buf, proj, "Word2Vec Character Embedding"); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	})
	c.hit = hit
	if err != nil {
		c.fail(err)
		return
	}
	c.okPNG(img)
}
