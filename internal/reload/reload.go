// Package reload triggers vocabulary reloads from outside the HTTP API:
// SIGHUP for the local process, and a Kafka topic so one command reaches
// every replica.
package reload

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/embedding/engine"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/kafka"
)

// Reloader is implemented by engine.Holder.
type Reloader interface {
	Current() (*engine.Snapshot, error)
	Reload(ctx context.Context) (*engine.Snapshot, error)
}

// Request is the message published on the reload topic.
type Request struct {
	Reason      string    `json:"reason"`
	RequestedBy string    `json:"requested_by,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Publish announces a reload to every consumer of the topic.
func Publish(ctx context.Context, producer *kafka.Producer, req Request) error {
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now().UTC()
	}
	return producer.Publish(ctx, kafka.Event{Key: "reload", Value: req})
}

// HandleMessage returns a kafka.MessageHandler that reloads r. Requests
// older than the live snapshot are skipped; the vocabulary they ask for is
// already loaded. A failed reload returns an error so the message is not
// committed.
func HandleMessage(r Reloader) kafka.MessageHandler {
	logger := slog.Default().With("component", "reload-consumer")
	return func(ctx context.Context, key, value []byte) error {
		req, err := kafka.DecodeJSON[Request](value)
		if err != nil {
			logger.Error("skipping undecodable reload request", "key", string(key), "error", err)
			return nil
		}
		if snap, err := r.Current(); err == nil && req.Timestamp.Before(snap.LoadedAt) {
			logger.Debug("skipping stale reload request",
				"requested_at", req.Timestamp,
				"loaded_at", snap.LoadedAt,
			)
			return nil
		}
		snap, err := r.Reload(ctx)
		if err != nil {
			return err
		}
		logger.Info("vocabulary reloaded from kafka",
			"reason", req.Reason,
			"requested_by", req.RequestedBy,
			"version", snap.Version,
		)
		return nil
	}
}

// OnSignal reloads r every time the process receives SIGHUP, until ctx is
// done.
func OnSignal(ctx context.Context, r Reloader) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP)
	defer signal.Stop(ch)
	watch(ctx, ch, r)
}

func watch(ctx context.Context, ch <-chan os.Signal, r Reloader) {
	logger := slog.Default().With("component", "reload-signal")
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-ch:
			logger.Info("reload signal received", "signal", sig.String())
			if _, err := r.Reload(ctx); err != nil {
				logger.Error("vocabulary reload failed", "error", err)
			}
		}
	}
}
