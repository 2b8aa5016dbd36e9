// Package engine owns the live vocabulary. Queries read an immutable
// Snapshot; a reload builds a complete new Snapshot off to the side and
// swaps it in atomically, so in-flight queries finish against the vocabulary
// they started with.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/embedding/similarity"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/embedding/solver"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/embedding/source"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/embedding/vocab"
	apperrors "github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/resilience"
	"github.com/google/uuid"
)

// Snapshot is one loaded vocabulary with the query services built on it.
type Snapshot struct {
	Store      *vocab.Store
	Similarity *similarity.Engine
	Solver     *solver.Solver
	// Version changes on every successful load and scopes cache keys.
	Version  string
	Source   string
	LoadedAt time.Time
}

// NewSnapshot wires the query services over store.
func NewSnapshot(store *vocab.Store, sourceName string) *Snapshot {
	sim := similarity.New(store)
	return &Snapshot{
		Store:      store,
		Similarity: sim,
		Solver:     solver.New(sim),
		Version:    uuid.NewString()[:8],
		Source:     sourceName,
		LoadedAt:   time.Now().UTC(),
	}
}

// Holder publishes the current Snapshot.
type Holder struct {
	src         source.Source
	loadTimeout time.Duration
	metrics     *metrics.Metrics
	logger      *slog.Logger

	current atomic.Pointer[Snapshot]

	reloadMu sync.Mutex
	hooksMu  sync.RWMutex
	hooks    []func(*Snapshot)
}

// Option configures a Holder.
type Option func(*Holder)

// WithLoadTimeout bounds a single load; zero means no bound.
func WithLoadTimeout(d time.Duration) Option {
	return func(h *Holder) { h.loadTimeout = d }
}

// WithMetrics records vocabulary gauges and reload outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Holder) { h.metrics = m }
}

// NewHolder returns a Holder with no vocabulary; call Reload to load one.
func NewHolder(src source.Source, opts ...Option) *Holder {
	h := &Holder{
		src:    src,
		logger: slog.Default().With("component", "engine"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Current returns the live snapshot, or ErrUnavailable before the first
// successful load.
func (h *Holder) Current() (*Snapshot, error) {
	snap := h.current.Load()
	if snap == nil {
		return nil, fmt.Errorf("%w: vocabulary not loaded", apperrors.ErrUnavailable)
	}
	return snap, nil
}

// OnReload registers fn to run after every successful swap.
func (h *Holder) OnReload(fn func(*Snapshot)) {
	h.hooksMu.Lock()
	defer h.hooksMu.Unlock()
	h.hooks = append(h.hooks, fn)
}

// Reload loads the source and swaps in the result. Concurrent calls are
// serialised. On failure the previous snapshot stays live.
func (h *Holder) Reload(ctx context.Context) (*Snapshot, error) {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()

	start := time.Now()
	var pairs []vocab.Pair
	err := resilience.WithTimeout(ctx, h.loadTimeout, "vocabulary load", func(ctx context.Context) error {
		var err error
		pairs, err = h.src.Load(ctx)
		return err
	})
	if err != nil {
		h.recordReload("failure")
		return nil, fmt.Errorf("loading %s: %w", h.src.Name(), err)
	}
	store, err := vocab.New(pairs)
	if err != nil {
		h.recordReload("failure")
		return nil, fmt.Errorf("building vocabulary from %s: %w", h.src.Name(), err)
	}
	return h.swap(NewSnapshot(store, h.src.Name()), time.Since(start)), nil
}

// Install swaps in a prebuilt store, bypassing the source.
func (h *Holder) Install(store *vocab.Store, sourceName string) *Snapshot {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()
	return h.swap(NewSnapshot(store, sourceName), 0)
}

func (h *Holder) swap(snap *Snapshot, took time.Duration) *Snapshot {
	prev := h.current.Swap(snap)
	h.recordReload("success")
	if h.metrics != nil {
		h.metrics.VocabularySize.Set(float64(snap.Store.Size()))
		h.metrics.VocabularyDimension.Set(float64(snap.Store.Dimension()))
	}
	attrs := []any{
		"source", snap.Source,
		"version", snap.Version,
		"tokens", snap.Store.Size(),
		"dimension", snap.Store.Dimension(),
		"took", took.Round(time.Millisecond),
	}
	if prev != nil {
		attrs = append(attrs, "previous_version", prev.Version)
	}
	h.logger.Info("vocabulary loaded", attrs...)

	h.hooksMu.RLock()
	hooks := append([]func(*Snapshot){}, h.hooks...)
	h.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(snap)
	}
	return snap
}

func (h *Holder) recordReload(status string) {
	if h.metrics != nil {
		h.metrics.ReloadsTotal.WithLabelValues(status).Inc()
	}
}
