package chain

import (
	"fmt"

	"github.com/klingnet-chain/zkchain/internal/kv"
)

// forkStore adapts a kv.Overlay to the kv.Store interface, so a whole
// speculative chain (reorg attempt, draft block) can
// be built and validated by running the same Chain methods against a
// forked Chain backed by one, discarding it on any failure.
type forkStore struct {
	overlay *kv.Overlay
}

func newForkStore(base kv.Store) *forkStore {
	return &forkStore{overlay: kv.NewOverlay(base)}
}

func (f *forkStore) Get(key string) ([]byte, bool, error) {
	return f.overlay.Get(key)
}

func (f *forkStore) Update(ops []kv.WriteOp) error {
	f.overlay.Apply(ops)
	return nil
}

func (f *forkStore) Pairs(prefix string, fn func(key string, value []byte) error) error {
	return fmt.Errorf("chain: Pairs is not supported on a forked overlay store")
}

func (f *forkStore) Close() error { return nil }

// forkChain returns a new Chain sharing c's genesis parameters but backed
// by a RAM overlay over c's store, so speculative application never
// touches the real store until the caller commits the overlay's ops.
func (c *Chain) forkChain() *Chain {
	return &Chain{store: newForkStore(c.store), genesis: c.genesis}
}
