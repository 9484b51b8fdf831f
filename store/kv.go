package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"
)

// Bucket is the KV bucket shared by every peer at an event.
const Bucket = "CREWMESH_STATE"

// historyDepth keeps a short recent window per key so rejoining peers can
// replay; nothing in the engine depends on more than the latest value.
const historyDepth = 5

// KV implements Mesh over a NATS JetStream key-value bucket.
type KV struct {
	kv     jetstream.KeyValue
	logger *slog.Logger
}

// NewKV binds to the shared bucket, creating it if this peer is first.
func NewKV(ctx context.Context, js jetstream.JetStream, logger *slog.Logger) (*KV, error) {
	if logger == nil {
		logger = slog.Default()
	}

	kv, err := js.KeyValue(ctx, Bucket)
	if err != nil {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      Bucket,
			Description: "crewmesh replicated event state",
			History:     historyDepth,
		})
		if err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", Bucket, err)
		}
	}

	return &KV{kv: kv, logger: logger}, nil
}

// Put writes a key fire-and-forget. The returned error covers only the
// local write; replication is the substrate's concern.
func (s *KV) Put(ctx context.Context, key string, value []byte) error {
	if _, err := s.kv.Put(ctx, key, value); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Watch streams every key change in the bucket, starting with the current
// value of every existing key so a late joiner converges to the shared
// state before seeing live traffic.
func (s *KV) Watch(ctx context.Context) (<-chan Update, error) {
	watcher, err := s.kv.WatchAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("watch bucket %s: %w", Bucket, err)
	}

	out := make(chan Update, 256)
	go func() {
		defer close(out)
		defer func() {
			if err := watcher.Stop(); err != nil {
				s.logger.Debug("stop watcher", "error", err)
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-watcher.Updates():
				if !ok {
					return
				}
				// A nil entry marks the end of the initial replay.
				if entry == nil {
					continue
				}
				if entry.Operation() != jetstream.KeyValuePut {
					continue
				}
				select {
				case out <- Update{Key: entry.Key(), Value: entry.Value()}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
