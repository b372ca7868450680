package chain

import (
	"sort"

	"github.com/klingnet-chain/zkchain/internal/kv"
	"github.com/klingnet-chain/zkchain/pkg/block"
	"github.com/klingnet-chain/zkchain/pkg/tx"
	"github.com/klingnet-chain/zkchain/pkg/types"
	"github.com/klingnet-chain/zkchain/pkg/zk"
)

// selectTransactions greedily picks the mempool entries a draft block
// will include: sorted by nonce so a source's transactions land in a
// valid order, admitted one at a time against a RAM fork so a later
// entry that would fail (bad nonce, insufficient balance, a budget that
// no longer fits) is simply skipped rather than aborting the whole
// block.
func (c *Chain) selectTransactions(mempool []tx.TransactionAndDelta) ([]tx.TransactionAndDelta, error) {
	sorted := make([]tx.TransactionAndDelta, len(mempool))
	copy(sorted, mempool)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Tx.Nonce < sorted[j].Tx.Nonce })

	ov := kv.NewOverlay(c.store)

	result := make([]tx.TransactionAndDelta, 0, len(sorted))
	var size int64
	maxDelta := int64(c.genesis.Params.MaxDeltaSize)

	for _, td := range sorted {
		delta := int64(td.Tx.Size())
		if td.StateDelta != nil {
			delta += int64(td.StateDelta.Size())
		}
		if size+delta > maxDelta {
			continue
		}
		t := td.Tx
		if _, err := c.applyTx(ov, &t, false); err != nil {
			continue
		}
		size += delta
		result = append(result, td)
	}
	return result, nil
}

// SelectTransactions returns the subset of mempool a draft block would
// include right now.
func (c *Chain) SelectTransactions(mempool []tx.TransactionAndDelta) ([]tx.TransactionAndDelta, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selectTransactions(mempool)
}

// draftBlock assembles a candidate block paying rewardAddr the current
// miner reward, followed by as much of mempool as selectTransactions
// admits, then validates the whole thing end-to-end against a RAM fork
// before returning it. It never mutates the real store.
func (c *Chain) draftBlock(timestamp uint64, mempool []tx.TransactionAndDelta, rewardAddr types.Address) (*BlockAndPatch, error) {
	height, err := c.getHeight(c.store)
	if err != nil {
		return nil, err
	}
	outdated, err := c.getOutdatedStates(c.store)
	if err != nil {
		return nil, err
	}
	if len(outdated) > 0 {
		return nil, ErrStatesOutdated
	}

	lastHeader, err := c.getHeader(c.store, height-1)
	if err != nil {
		return nil, err
	}
	treasury, err := c.getAccount(c.store, types.Treasury())
	if err != nil {
		return nil, err
	}
	reward, err := c.nextReward(c.store)
	if err != nil {
		return nil, err
	}

	body := []*tx.Transaction{{
		Src:   types.Treasury(),
		Nonce: treasury.Nonce + 1,
		Data:  tx.RegularSend(rewardAddr, reward),
		Fee:   0,
		Sig:   tx.Unsigned(),
	}}

	selected, err := c.selectTransactions(mempool)
	if err != nil {
		return nil, err
	}

	patch := BlockchainPatch{Patches: map[types.ContractID]zk.StatePatch{}}
	for _, td := range selected {
		var cid types.ContractID
		hasContract := true
		switch td.Tx.Data.Kind {
		case tx.DataCreateContract:
			cid = td.Tx.ContractID()
		case tx.DataDepositWithdraw, tx.DataUpdate:
			cid = td.Tx.Data.ContractID
		default:
			hasContract = false
		}
		if hasContract {
			if td.StateDelta == nil {
				return nil, ErrFullStateNotFound
			}
			patch.Patches[cid] = zk.DeltaPatch(*td.StateDelta)
		}
		t := td.Tx
		body = append(body, &t)
	}

	hashes := make([]types.Hash, len(body))
	for i, t := range body {
		hashes[i] = t.Hash()
	}

	target, err := c.nextDifficulty(c.store)
	if err != nil {
		return nil, err
	}

	header := &block.Header{
		ParentHash: lastHeader.Hash(),
		Number:     height,
		BlockRoot:  block.ComputeMerkleRoot(hashes),
		Pow: block.ProofOfWork{
			Timestamp: timestamp,
			Target:    target,
			Nonce:     0,
		},
	}
	candidate := block.NewBlock(header, body)

	fork := c.forkChain()
	if err := fork.applyBlock(candidate, false); err != nil {
		return nil, err
	}
	if err := fork.updateStates(patch); err != nil {
		return nil, err
	}

	return &BlockAndPatch{Block: candidate, Patch: patch}, nil
}

// DraftBlock assembles a candidate next block paying rewardAddr the
// current miner reward plus as much of mempool as fits, ready for a
// miner to search for a satisfying nonce.
func (c *Chain) DraftBlock(timestamp uint64, mempool []tx.TransactionAndDelta, rewardAddr types.Address) (*BlockAndPatch, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.draftBlock(timestamp, mempool, rewardAddr)
}
