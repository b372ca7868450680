// Package chain implements the account-based ledger, block validation and
// application, difficulty retargeting, and ZK contract state tracking at
// the heart of a node: everything a miner or a syncing peer needs in
// order to agree on one canonical history.
package chain

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sync"

	"github.com/klingnet-chain/zkchain/config"
	"github.com/klingnet-chain/zkchain/internal/kv"
	"github.com/klingnet-chain/zkchain/pkg/block"
	"github.com/klingnet-chain/zkchain/pkg/types"
	"github.com/klingnet-chain/zkchain/pkg/zk"
)

// outdatedEntry is the compressed state a contract was last known to carry
// before its full state fell out of sync with what the ledger commits to.
type outdatedEntry = zk.CompressedState

// Power is the cumulative proof-of-work a chain has accumulated through
// its tip, stored as a big.Int's decimal text so it survives JSON
// round-tripping without precision loss (a plain *big.Int is not itself a
// valid map/struct field for json across all Go versions the way a
// string-backed wrapper is).
type Power struct {
	big.Int
}

// NewPower wraps v as a Power.
func NewPower(v *big.Int) Power {
	p := Power{}
	if v != nil {
		p.Int.Set(v)
	}
	return p
}

// MarshalJSON encodes the power as a decimal string.
func (p Power) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Int.String())
}

// UnmarshalJSON decodes a decimal string into the power.
func (p *Power) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		s = "0"
	}
	if _, ok := p.Int.SetString(s, 10); !ok {
		return fmt.Errorf("chain: invalid power %q", s)
	}
	return nil
}

// Add returns p + other.
func (p Power) Add(other Power) Power {
	var out Power
	out.Int.Add(&p.Int, &other.Int)
	return out
}

// GreaterThan reports whether p > other.
func (p Power) GreaterThan(other Power) bool {
	return p.Int.Cmp(&other.Int) > 0
}

// BlockchainPatch is the set of full or delta state patches needed to
// bring every outdated contract back up to date, keyed by contract ID.
type BlockchainPatch struct {
	Patches map[types.ContractID]zk.StatePatch
}

// MarshalJSON encodes the patch map with hex contract-ID keys, since
// ContractID is not a string type the encoding/json package can use
// directly as a map key.
func (p BlockchainPatch) MarshalJSON() ([]byte, error) {
	raw := make(map[string]zk.StatePatch, len(p.Patches))
	for cid, patch := range p.Patches {
		raw[cid.String()] = patch
	}
	return json.Marshal(raw)
}

// UnmarshalJSON decodes a patch map with hex contract-ID keys.
func (p *BlockchainPatch) UnmarshalJSON(data []byte) error {
	var raw map[string]zk.StatePatch
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Patches = make(map[types.ContractID]zk.StatePatch, len(raw))
	for s, patch := range raw {
		cid, err := types.HexToContractID(s)
		if err != nil {
			return err
		}
		p.Patches[cid] = patch
	}
	return nil
}

// BlockAndPatch bundles a block together with the state patch that brings
// every contract it touches up to date; this is what the genesis
// configuration produces and what a miner assembles before broadcasting.
type BlockAndPatch struct {
	Block *block.Block
	Patch BlockchainPatch
}

// Chain is the consensus engine: an account ledger and ZK contract
// registry backed by a versioned key-value store, guarded by a single
// read-write lock so public getters can run concurrently with each other
// but never alongside a block application or rollback.
type Chain struct {
	mu      sync.RWMutex
	store   kv.Store
	genesis *config.Genesis
}

// New opens a chain backed by store, applying the genesis block the first
// time it is ever opened (detected by the stored height still being
// zero). Subsequent opens against the same store reuse its history as-is
// and ignore genesis beyond using it for consensus parameters.
func New(store kv.Store, genesis *config.Genesis) (*Chain, error) {
	c := &Chain{store: store, genesis: genesis}

	height, err := c.getHeight(c.store)
	if err != nil {
		return nil, err
	}
	if height == 0 {
		genesisBlock, genesisPatch, err := buildGenesisBlock(genesis)
		if err != nil {
			return nil, fmt.Errorf("chain: build genesis block: %w", err)
		}
		if err := c.applyBlock(genesisBlock, true); err != nil {
			return nil, fmt.Errorf("chain: apply genesis block: %w", err)
		}
		if err := c.updateStates(genesisPatch); err != nil {
			return nil, fmt.Errorf("chain: apply genesis patch: %w", err)
		}
	}
	return c, nil
}

// getChangedStates returns the per-contract compressed-state transitions
// recorded for the block at index, used by rollback to decide whether a
// contract can be rolled back locally or must be marked outdated.
func (c *Chain) getChangedStates(r reader, index uint64) (map[string]compressedStateChange, error) {
	out := map[string]compressedStateChange{}
	ok, err := getJSON(r, contractUpdatesKey(index), &out)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInconsistency
	}
	return out, nil
}

// powKey returns the seed a proof-of-work hash at block index must use.
// The key starts as the genesis-configured base key and rotates to the
// hash of a fixed reference header once index passes the configured
// delay, forcing miners to redo any precomputed work across the
// boundary instead of reusing it indefinitely.
func (c *Chain) powKey(r reader, index uint64) (types.Hash, error) {
	if index < c.genesis.Params.PowKeyChangeDelay {
		return c.genesis.Params.PowBaseKey, nil
	}
	reference := ((index - c.genesis.Params.PowKeyChangeDelay) / c.genesis.Params.PowKeyChangeInterval) *
		c.genesis.Params.PowKeyChangeInterval
	h, err := c.getHeader(r, reference)
	if err != nil {
		return types.Hash{}, err
	}
	return h.Hash(), nil
}

// PowKey returns the proof-of-work seed a block at index must be hashed
// under.
func (c *Chain) PowKey(index uint64) (types.Hash, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.powKey(c.store, index)
}

// nextReward computes the miner reward owed to whoever mines the next
// block: the treasury's remaining balance divided by the configured
// reward ratio, so the reward shrinks as the treasury is paid out.
func (c *Chain) nextReward(r reader) (types.Money, error) {
	acc, err := c.getAccount(r, types.Treasury())
	if err != nil {
		return 0, err
	}
	return acc.Balance / types.Money(c.genesis.Params.RewardRatio), nil
}

// NextReward returns the miner reward the next mined block must pay.
func (c *Chain) NextReward() (types.Money, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nextReward(c.store)
}

// GetOutdatedStates returns the contracts whose full state is not locally
// known to match the ledger's compressed commitment, together with the
// compressed state a patch must reproduce.
func (c *Chain) GetOutdatedStates() (map[types.ContractID]zk.CompressedState, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	raw, err := c.getOutdatedStates(c.store)
	if err != nil {
		return nil, err
	}
	out := make(map[types.ContractID]zk.CompressedState, len(raw))
	for s, cs := range raw {
		cid, err := types.HexToContractID(s)
		if err != nil {
			return nil, err
		}
		out[cid] = cs
	}
	return out, nil
}
