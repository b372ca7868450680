package chain

import (
	"github.com/klingnet-chain/zkchain/internal/kv"
	"github.com/klingnet-chain/zkchain/pkg/types"
	"github.com/klingnet-chain/zkchain/pkg/zk"
)

// updateStates re-hydrates every outdated contract's full state using
// the matching patch from patch.Patches, removing it from the outdated
// set once its reconstructed state actually compresses to the commitment
// the ledger is outdated against.
func (c *Chain) updateStates(patch BlockchainPatch) error {
	outdated, err := c.getOutdatedStates(c.store)
	if err != nil {
		return err
	}

	var ops []kv.WriteOp
	for cidStr, compState := range outdated {
		cid, err := types.HexToContractID(cidStr)
		if err != nil {
			return err
		}
		contract, err := c.getContract(c.store, cid)
		if err != nil {
			return err
		}
		contractAccount, err := c.getContractAccount(c.store, cid)
		if err != nil {
			return err
		}
		p, ok := patch.Patches[cid]
		if !ok {
			return ErrFullStateNotFound
		}

		var fullState *zk.State
		switch p.Kind {
		case zk.StatePatchFull:
			prevStates := p.Full.CompressPrevStates(contract.Model, int(contractAccount.Height))
			for i, calcState := range prevStates {
				actualState, err := c.getCompressedStateAt(c.store, cid, contractAccount.Height-1-uint64(i))
				if err != nil {
					return err
				}
				if calcState != actualState {
					return ErrDeltasInvalid
				}
			}
			fullState = p.Full
		case zk.StatePatchDelta:
			state, err := c.getState(c.store, cid)
			if err != nil {
				return err
			}
			state.PushDelta(*p.Delta, int(c.genesis.Params.NumStateDeltasKeep))
			fullState = state
		default:
			return ErrFullStateNotValid
		}

		if fullState.Compress(contract.Model) != compState {
			return ErrFullStateNotValid
		}
		op, err := putJSON(contractStateKey(cid), fullState)
		if err != nil {
			return err
		}
		ops = append(ops, op)
		delete(outdated, cidStr)
	}

	outdatedOp, err := putJSON(outdatedKey(), outdated)
	if err != nil {
		return err
	}
	ops = append(ops, outdatedOp)

	return c.store.Update(ops)
}

// UpdateStates re-hydrates every currently outdated contract using patch.
func (c *Chain) UpdateStates(patch BlockchainPatch) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updateStates(patch)
}

// generateStatePatch builds the patches needed to bring a peer, who last
// synced at header to and already knows the compressed state recorded in
// aways for each contract, up to date: a delta when the local state's
// retained history reaches back far enough, a full state otherwise.
func (c *Chain) generateStatePatch(aways map[types.ContractID]zk.CompressedState, to types.Hash) (BlockchainPatch, error) {
	height, err := c.getHeight(c.store)
	if err != nil {
		return BlockchainPatch{}, err
	}
	lastHeader, err := c.getHeader(c.store, height-1)
	if err != nil {
		return BlockchainPatch{}, err
	}
	if lastHeader.Hash() != to {
		return BlockchainPatch{}, ErrStatesUnavailable
	}

	outdated, err := c.getOutdatedStates(c.store)
	if err != nil {
		return BlockchainPatch{}, err
	}

	out := BlockchainPatch{Patches: map[types.ContractID]zk.StatePatch{}}
	for cid, away := range aways {
		if _, isOutdated := outdated[cid.String()]; isOutdated {
			continue
		}
		state, err := c.getState(c.store, cid)
		if err != nil {
			return BlockchainPatch{}, err
		}
		contract, err := c.getContract(c.store, cid)
		if err != nil {
			return BlockchainPatch{}, err
		}

		// away only carries a hash+size commitment, not the height it was
		// taken at, so the distance back is found by matching it against
		// the retained history rather than by arithmetic on Size.
		steps := -1
		for i, ps := range state.CompressPrevStates(contract.Model, len(state.History)) {
			if ps == away {
				steps = i + 1
				break
			}
		}
		if steps < 0 {
			out.Patches[cid] = zk.FullPatch(state)
			continue
		}
		if delta, ok := state.DeltaOf(uint64(steps)); ok {
			out.Patches[cid] = zk.DeltaPatch(delta)
		} else {
			out.Patches[cid] = zk.FullPatch(state)
		}
	}
	return out, nil
}

// GenerateStatePatch builds the state patches a peer at the given tip,
// last known to hold the compressed states in aways, needs to catch up.
func (c *Chain) GenerateStatePatch(aways map[types.ContractID]zk.CompressedState, to types.Hash) (BlockchainPatch, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generateStatePatch(aways, to)
}
