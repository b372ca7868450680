package chain

import (
	"sort"

	"github.com/klingnet-chain/zkchain/internal/kv"
	"github.com/klingnet-chain/zkchain/pkg/block"
	"github.com/klingnet-chain/zkchain/pkg/crypto"
	"github.com/klingnet-chain/zkchain/pkg/tx"
	"github.com/klingnet-chain/zkchain/pkg/types"
)

// headerPower returns the proof-of-work credited to a single header: the
// expected number of hash attempts to meet its target.
func headerPower(h *block.Header) Power {
	return NewPower(crypto.Work(h.Pow.Target))
}

// meetsTarget reports whether h's seeded proof-of-work hash satisfies its
// own target.
func meetsTarget(key types.Hash, h *block.Header) bool {
	return crypto.MeetsTarget(crypto.SeededHash(key, h.SigningBytes()), h.Pow.Target)
}

// applyBlock validates and applies block against the committed store,
// using a RAM overlay so any failure midway through leaves the store
// untouched. checkPow disables the proof-of-work check for drafting and
// genesis application, where the caller already knows (or does not yet
// need) a valid nonce.
func (c *Chain) applyBlock(b *block.Block, checkPow bool) error {
	currHeight, err := c.getHeight(c.store)
	if err != nil {
		return err
	}
	isGenesis := b.Header.Number == 0
	nextReward, err := c.nextReward(c.store)
	if err != nil {
		return err
	}

	if currHeight > 0 {
		hashes := make([]types.Hash, len(b.Body))
		for i, t := range b.Body {
			hashes[i] = t.Hash()
		}
		if block.ComputeMerkleRoot(hashes) != b.Header.BlockRoot {
			return ErrInvalidMerkleRoot
		}
		if _, err := c.willExtend(currHeight, []*block.Header{b.Header}, checkPow); err != nil {
			return err
		}
	}

	ov := kv.NewOverlay(c.store)

	txs := b.Body
	if !isGenesis {
		if len(b.Body) == 0 {
			return ErrMinerRewardNotFound
		}
		rewardTx := b.Body[0]
		if !rewardTx.Src.IsTreasury() || rewardTx.Fee != 0 || rewardTx.Sig.Kind != tx.SigUnsigned {
			return ErrInvalidMinerReward
		}
		if rewardTx.Data.Kind != tx.DataRegularSend || rewardTx.Data.Amount != nextReward {
			return ErrInvalidMinerReward
		}
		if _, err := c.applyTx(ov, rewardTx, true); err != nil {
			return err
		}
		txs = b.Body[1:]
	}

	var bodySize int
	var stateSizeDelta int64
	stateUpdates := map[string]compressedStateChange{}
	outdatedStates, err := c.getOutdatedStates(c.store)
	if err != nil {
		return err
	}

	for _, t := range txs {
		bodySize += t.Size()
		effect, err := c.applyTx(ov, t, isGenesis)
		if err != nil {
			return err
		}
		if effect.Fee > 0 {
			treasury, err := c.getAccount(ov, types.Treasury())
			if err != nil {
				return err
			}
			treasury.Balance += effect.Fee
			op, err := putJSON(accountKey(types.Treasury()), treasury)
			if err != nil {
				return err
			}
			ov.Apply([]kv.WriteOp{op})
		}
		if effect.HasStateChange {
			stateSizeDelta += int64(effect.StateChange.State.Size) - int64(effect.StateChange.PrevState.Size)
			cidStr := effect.ContractID.String()
			stateUpdates[cidStr] = compressedStateChange{
				PrevState: effect.StateChange.PrevState,
				State:     effect.StateChange.State,
			}
			outdatedStates[cidStr] = effect.StateChange.State
		}
	}

	if uint64(int64(bodySize)+stateSizeDelta) > c.genesis.Params.MaxDeltaSize {
		return ErrBlockTooBig
	}

	changes := ov.ToOps()
	sort.Slice(changes, func(i, j int) bool { return changes[i].Key < changes[j].Key })

	currPower, err := c.getPower(c.store)
	if err != nil {
		return err
	}
	newPower := currPower.Add(headerPower(b.Header))

	heightOp, err := putJSON(heightKey(), currHeight+1)
	if err != nil {
		return err
	}
	powerOp, err := putJSON(powerKey(b.Header.Number), newPower)
	if err != nil {
		return err
	}
	headerOp, err := putJSON(headerKey(b.Header.Number), b.Header)
	if err != nil {
		return err
	}
	blockOp, err := putJSON(blockKey(b.Header.Number), b)
	if err != nil {
		return err
	}
	merkleOp, err := putJSON(merkleKey(b.Header.Number), merkleHashes(b))
	if err != nil {
		return err
	}
	updatesOp, err := putJSON(contractUpdatesKey(b.Header.Number), stateUpdates)
	if err != nil {
		return err
	}
	outdatedOp, err := putJSON(outdatedKey(), outdatedStates)
	if err != nil {
		return err
	}

	changes = append(changes, heightOp, powerOp, headerOp, blockOp, merkleOp, updatesOp, outdatedOp)

	rollback, err := kv.RollbackOf(c.store, changes)
	if err != nil {
		return err
	}
	rollbackOp, err := putJSON(rollbackKey(b.Header.Number), rollback)
	if err != nil {
		return err
	}
	changes = append(changes, rollbackOp)

	return c.store.Update(changes)
}

// merkleHashes returns the per-transaction hashes stored alongside a
// block, letting a light client rebuild the merkle tree without
// re-hashing every transaction's full body.
func merkleHashes(b *block.Block) []types.Hash {
	out := make([]types.Hash, len(b.Body))
	for i, t := range b.Body {
		out[i] = t.Hash()
	}
	return out
}

// ApplyBlock validates and commits b as the new tip.
func (c *Chain) ApplyBlock(b *block.Block, checkPow bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applyBlock(b, checkPow)
}

// rollbackBlock undoes the current tip, restoring the state each touched
// key held immediately before that block was applied. A contract whose
// state cannot be rolled back locally (no retained history, or it was
// already outdated) is marked outdated instead of erroring, matching the
// asymmetry between a ledger's own bookkeeping (always rolled back
// exactly) and off-chain ZK state (only ever best-effort retained).
func (c *Chain) rollbackBlock() error {
	height, err := c.getHeight(c.store)
	if err != nil {
		return err
	}
	if height == 0 {
		return ErrNoBlocksToRollback
	}

	var rollback []kv.WriteOp
	ok, err := getJSON(c.store, rollbackKey(height-1), &rollback)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInconsistency
	}

	outdated, err := c.getOutdatedStates(c.store)
	if err != nil {
		return err
	}
	changedStates, err := c.getChangedStates(c.store, height-1)
	if err != nil {
		return err
	}

	for cidStr, change := range changedStates {
		if _, already := outdated[cidStr]; already {
			continue
		}
		cid, err := types.HexToContractID(cidStr)
		if err != nil {
			return err
		}
		contract, err := c.getContract(c.store, cid)
		if err != nil {
			return err
		}
		state, err := c.getState(c.store, cid)
		if err != nil {
			return err
		}
		if state.Rollback() {
			if state.Compress(contract.Model) != change.PrevState {
				return ErrInconsistency
			}
			op, err := putJSON(contractStateKey(cid), state)
			if err != nil {
				return err
			}
			rollback = append(rollback, op)
		} else if change.PrevState.Size > 0 {
			outdated[cidStr] = change.PrevState
		}
	}
	outdatedOp, err := putJSON(outdatedKey(), outdated)
	if err != nil {
		return err
	}
	rollback = append(rollback,
		outdatedOp,
		kv.Remove(headerKey(height-1)),
		kv.Remove(blockKey(height-1)),
		kv.Remove(merkleKey(height-1)),
		kv.Remove(contractUpdatesKey(height-1)),
		kv.Remove(rollbackKey(height-1)),
	)
	return c.store.Update(rollback)
}

// RollbackBlock undoes the current tip.
func (c *Chain) RollbackBlock() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollbackBlock()
}

// willExtend reports whether adopting headers (which must pick up
// immediately after block from-1) would leave the chain with strictly
// more accumulated work than it has now. It validates header linkage,
// difficulty continuity, median-time-past, and proof-of-work along the
// way; checkPow lets a caller skip the PoW check when the headers are
// already known-valid or not yet mined (a drafted block whose nonce has
// not been searched, say).
func (c *Chain) willExtend(from uint64, headers []*block.Header, checkPow bool) (bool, error) {
	currentPower, err := c.getPower(c.store)
	if err != nil {
		return false, err
	}
	height, err := c.getHeight(c.store)
	if err != nil {
		return false, err
	}
	if from == 0 {
		return false, ErrExtendFromGenesis
	}
	if from > height {
		return false, ErrExtendFromFuture
	}

	var newPower Power
	ok, err := getJSON(c.store, powerKey(from-1), &newPower)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrInconsistency
	}

	lastHeader, err := c.getHeader(c.store, from-1)
	if err != nil {
		return false, err
	}
	interval := c.genesis.Params.DifficultyCalcInterval
	lastPowHeader, err := c.getHeader(c.store, lastHeader.Number-(lastHeader.Number%interval))
	if err != nil {
		return false, err
	}
	lastPow := lastPowHeader.Pow

	for _, h := range headers {
		if h.Number%interval == 0 {
			anchor, err := c.getHeader(c.store, h.Number-interval)
			if err != nil {
				return false, err
			}
			if h.Pow.Target != c.computeRetarget(lastHeader, anchor) {
				return false, ErrDifficultyTargetWrong
			}
			lastPow = h.Pow
		}

		key, err := c.powKey(c.store, h.Number)
		if err != nil {
			return false, err
		}

		mtp, err := c.medianTimestamp(c.store, from-1)
		if err != nil {
			return false, err
		}
		if h.Pow.Timestamp < mtp {
			return false, ErrInvalidTimestamp
		}
		if lastPow.Target != h.Pow.Target {
			return false, ErrDifficultyTargetWrong
		}
		if checkPow && !meetsTarget(key, h) {
			return false, ErrDifficultyTargetUnmet
		}
		if h.Number != lastHeader.Number+1 {
			return false, ErrInvalidBlockNumber
		}
		if h.ParentHash != lastHeader.Hash() {
			return false, ErrInvalidParentHash
		}

		lastHeader = h
		newPower = newPower.Add(headerPower(h))
	}

	return newPower.GreaterThan(currentPower), nil
}

// WillExtend reports whether adopting headers starting at from would
// give the chain more accumulated work than it currently has.
func (c *Chain) WillExtend(from uint64, headers []*block.Header, checkPow bool) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.willExtend(from, headers, checkPow)
}

// extend replaces everything from height from onward with blocks,
// rolling back the displaced suffix first. The whole operation is
// validated end-to-end before anything touches the real store: a forked
// overlay chain rolls back and replays against itself, and only its
// final write batch is committed.
func (c *Chain) extend(from uint64, blocks []*block.Block) error {
	currHeight, err := c.getHeight(c.store)
	if err != nil {
		return err
	}
	if from == 0 {
		return ErrExtendFromGenesis
	}
	if from > currHeight {
		return ErrExtendFromFuture
	}

	forked := c.forkChain()
	for {
		h, err := forked.getHeight(forked.store)
		if err != nil {
			return err
		}
		if h <= from {
			break
		}
		if err := forked.rollbackBlock(); err != nil {
			return err
		}
	}
	for _, b := range blocks {
		if err := forked.applyBlock(b, true); err != nil {
			return err
		}
	}

	ops := forked.store.(*forkStore).overlay.ToOps()
	return c.store.Update(ops)
}

// Extend replaces everything from height from onward with blocks.
func (c *Chain) Extend(from uint64, blocks []*block.Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.extend(from, blocks)
}
