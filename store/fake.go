package store

import (
	"context"
	"sync"
)

// Fake is an in-memory Mesh for tests. Every Put fans out to every
// watcher, including the writer, and Replay re-delivers all recorded
// updates to exercise at-least-once duplicate delivery.
type Fake struct {
	mu       sync.Mutex
	puts     []Update
	watchers []chan Update
}

// NewFake builds an empty fake mesh.
func NewFake() *Fake {
	return &Fake{}
}

// Put records the update and delivers it to all watchers.
func (f *Fake) Put(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := Update{Key: key, Value: append([]byte(nil), value...)}
	f.puts = append(f.puts, u)
	for _, ch := range f.watchers {
		ch <- u
	}
	return nil
}

// Watch registers a watcher. Previously recorded updates are replayed
// first, matching the late-joiner behavior of the real mesh.
func (f *Fake) Watch(ctx context.Context) (<-chan Update, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan Update, 1024)
	for _, u := range f.puts {
		ch <- u
	}
	f.watchers = append(f.watchers, ch)

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		defer f.mu.Unlock()
		for i, w := range f.watchers {
			if w == ch {
				f.watchers = append(f.watchers[:i], f.watchers[i+1:]...)
				close(ch)
				break
			}
		}
	}()

	return ch, nil
}

// Replay re-delivers every recorded update to all current watchers,
// simulating duplicate delivery from the substrate.
func (f *Fake) Replay() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.puts {
		for _, ch := range f.watchers {
			ch <- u
		}
	}
}

// Puts returns a copy of all recorded updates in write order.
func (f *Fake) Puts() []Update {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Update, len(f.puts))
	copy(out, f.puts)
	return out
}
