// Package mempool holds transactions a node has heard about but that
// have not yet been mined into a block: the set a draft block is built
// from. Transactions in blocks undone by a reorg are not added back.
package mempool

import (
	"fmt"
	"sort"
	"sync"

	"github.com/klingnet-chain/zkchain/internal/chain"
	"github.com/klingnet-chain/zkchain/pkg/tx"
	"github.com/klingnet-chain/zkchain/pkg/types"
)

// Pool holds pending transactions keyed by hash, admitting only entries
// the chain's own dry-run validation (SelectTransactions against a
// single-element batch) accepts, and evicting the lowest-fee entry once
// capacity is reached.
type Pool struct {
	mu       sync.Mutex
	chain    *chain.Chain
	capacity int
	minFee   types.Money
	items    map[types.Hash]tx.TransactionAndDelta
}

// New creates a Pool bounded to capacity entries, validating admissions
// against chain.
func New(c *chain.Chain, capacity int) *Pool {
	return &Pool{
		chain:    c,
		capacity: capacity,
		items:    make(map[types.Hash]tx.TransactionAndDelta),
	}
}

// SetMinFee sets the minimum fee a transaction must carry to be admitted.
func (p *Pool) SetMinFee(fee types.Money) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.minFee = fee
}

// Add validates td against the current chain tip and, if accepted,
// inserts it into the pool, returning its fee. A transaction that the
// chain would reject (bad signature, bad nonce, insufficient balance,
// below the minimum fee) is rejected with an error rather than queued.
func (p *Pool) Add(td tx.TransactionAndDelta) (types.Money, error) {
	if !td.Tx.Fee.GreaterOrEqual(p.minFeeSnapshot()) {
		return 0, fmt.Errorf("mempool: fee %d below minimum %d", td.Tx.Fee, p.minFeeSnapshot())
	}

	selected, err := p.chain.SelectTransactions([]tx.TransactionAndDelta{td})
	if err != nil {
		return 0, fmt.Errorf("mempool: validate: %w", err)
	}
	if len(selected) == 0 {
		return 0, fmt.Errorf("mempool: transaction rejected by chain validation")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	hash := td.Tx.Hash()
	p.items[hash] = td
	p.evictIfOverCapacity()
	return td.Tx.Fee, nil
}

func (p *Pool) minFeeSnapshot() types.Money {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.minFee
}

// evictIfOverCapacity drops the lowest-fee entries until the pool fits
// within capacity. Called with mu held.
func (p *Pool) evictIfOverCapacity() {
	if p.capacity <= 0 || len(p.items) <= p.capacity {
		return
	}
	hashes := make([]types.Hash, 0, len(p.items))
	for h := range p.items {
		hashes = append(hashes, h)
	}
	sort.Slice(hashes, func(i, j int) bool {
		return p.items[hashes[i]].Tx.Fee < p.items[hashes[j]].Tx.Fee
	})
	for _, h := range hashes[:len(p.items)-p.capacity] {
		delete(p.items, h)
	}
}

// Remove drops a single transaction from the pool, if present.
func (p *Pool) Remove(hash types.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.items, hash)
}

// RemoveConfirmed drops every transaction in confirmed from the pool,
// called after a block that included them has been applied.
func (p *Pool) RemoveConfirmed(confirmed []*tx.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range confirmed {
		delete(p.items, t.Hash())
	}
}

// Pending returns a snapshot of every transaction currently queued, the
// candidate set a draft block is built from.
func (p *Pool) Pending() []tx.TransactionAndDelta {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]tx.TransactionAndDelta, 0, len(p.items))
	for _, td := range p.items {
		out = append(out, td)
	}
	return out
}

// Len reports how many transactions are currently queued.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}
