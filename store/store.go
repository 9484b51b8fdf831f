// Package store provides the replicated mesh boundary. The contract is
// deliberately weak: puts are fire-and-forget and eventually visible, and
// the watch feed delivers every put — including the subscriber's own — at
// least once, in no particular order. Everything above this package must
// hold under exactly that contract and nothing stronger.
package store

import "context"

// Update is one key change delivered by the mesh.
type Update struct {
	Key   string
	Value []byte
}

// Mesh is the replicated store seen by the engine and the outbound
// publisher.
type Mesh interface {
	// Put writes a key. Visibility to self and peers is eventual; no
	// acknowledgement of replication is awaited.
	Put(ctx context.Context, key string, value []byte) error

	// Watch delivers key changes until ctx is cancelled. Late joiners
	// receive the current state of every key before live updates.
	Watch(ctx context.Context) (<-chan Update, error)
}
