package chain

import (
	"github.com/klingnet-chain/zkchain/internal/kv"
	"github.com/klingnet-chain/zkchain/pkg/tx"
	"github.com/klingnet-chain/zkchain/pkg/types"
	"github.com/klingnet-chain/zkchain/pkg/zk"
)

// compressedStateChange records a contract's compressed state immediately
// before and after a state-mutating transaction, letting the block
// applier track outdated states and letting rollback verify it is
// undoing the right thing.
type compressedStateChange struct {
	PrevState zk.CompressedState `json:"prev_state"`
	State     zk.CompressedState `json:"state"`
}

// txSideEffect is what applyTx reports back to the block applier beyond
// the balance/nonce changes it already staged directly on the overlay.
type txSideEffect struct {
	ContractID     types.ContractID
	StateChange    compressedStateChange
	HasStateChange bool
	Fee            types.Money
}

// applyTx applies a single transaction against ov, the account ledger and
// ZK contract state it touches. allowTreasury permits Treasury as a
// source (only legal for the miner-reward transaction and, for every
// source, inside the genesis block).
func (c *Chain) applyTx(ov *kv.Overlay, t *tx.Transaction, allowTreasury bool) (txSideEffect, error) {
	acc, err := c.getAccount(ov, t.Src)
	if err != nil {
		return txSideEffect{}, err
	}

	if t.Src.IsTreasury() && !allowTreasury {
		return txSideEffect{}, ErrIllegalTreasuryAccess
	}
	if !t.Src.IsTreasury() && !t.VerifySignature() {
		return txSideEffect{}, ErrSignatureError
	}
	if t.Nonce != acc.Nonce+1 {
		return txSideEffect{}, ErrInvalidTransactionNonce
	}
	if acc.Balance < t.Fee {
		return txSideEffect{}, ErrBalanceInsufficient
	}

	acc.Balance -= t.Fee
	acc.Nonce++

	var effect txSideEffect

	switch t.Data.Kind {
	case tx.DataRegularSend:
		if acc.Balance < t.Data.Amount {
			return txSideEffect{}, ErrBalanceInsufficient
		}
		if t.Data.Dst != t.Src {
			acc.Balance -= t.Data.Amount
			dst, err := c.getAccount(ov, t.Data.Dst)
			if err != nil {
				return txSideEffect{}, err
			}
			dst.Balance += t.Data.Amount
			op, err := putJSON(accountKey(t.Data.Dst), dst)
			if err != nil {
				return txSideEffect{}, err
			}
			ov.Apply([]kv.WriteOp{op})
		}

	case tx.DataCreateContract:
		cid := t.ContractID()
		ca := ContractAccount{Height: 1, CompressedState: t.Data.Contract.InitialState}
		ops, err := jsonOps(
			kvPair{contractKey(cid), t.Data.Contract},
			kvPair{contractAccountKey(cid), ca},
			kvPair{contractCompressedStateKey(cid, 1), t.Data.Contract.InitialState},
		)
		if err != nil {
			return txSideEffect{}, err
		}
		ov.Apply(ops)
		effect = txSideEffect{
			ContractID:     cid,
			HasStateChange: true,
			StateChange: compressedStateChange{
				PrevState: zk.NewState().Compress(t.Data.Contract.Model),
				State:     t.Data.Contract.InitialState,
			},
		}

	case tx.DataDepositWithdraw:
		se, err := c.applyDepositWithdraw(ov, t)
		if err != nil {
			return txSideEffect{}, err
		}
		effect = se

	case tx.DataUpdate:
		se, err := c.applyUpdate(ov, t)
		if err != nil {
			return txSideEffect{}, err
		}
		effect = se
	}

	op, err := putJSON(accountKey(t.Src), acc)
	if err != nil {
		return txSideEffect{}, err
	}
	ov.Apply([]kv.WriteOp{op})

	effect.Fee = t.Fee
	return effect, nil
}

// applyDepositWithdraw moves value between t.Src's account and the
// contract's balance for each item, then advances the contract's
// compressed state once the proof checks out. Balance moves happen
// before the proof check is consulted so a failing proof never mutates
// anything (the overlay discards the whole attempt on error).
func (c *Chain) applyDepositWithdraw(ov *kv.Overlay, t *tx.Transaction) (txSideEffect, error) {
	cid := t.Data.ContractID
	contract, err := c.getContract(ov, cid)
	if err != nil {
		return txSideEffect{}, err
	}
	prevAccount, err := c.getContractAccount(ov, cid)
	if err != nil {
		return txSideEffect{}, err
	}

	ops := make([]kv.WriteOp, 0, len(t.Data.Items)+1)
	contractBalance := prevAccount.Balance
	for _, item := range t.Data.Items {
		addr, err := c.getAccount(ov, item.Address)
		if err != nil {
			return txSideEffect{}, err
		}
		if item.Withdraw {
			if contractBalance < item.Amount {
				return txSideEffect{}, ErrBalanceInsufficient
			}
			contractBalance -= item.Amount
			addr.Balance += item.Amount
		} else {
			if addr.Balance < item.Amount {
				return txSideEffect{}, ErrBalanceInsufficient
			}
			addr.Balance -= item.Amount
			contractBalance += item.Amount
		}
		op, err := putJSON(accountKey(item.Address), addr)
		if err != nil {
			return txSideEffect{}, err
		}
		ops = append(ops, op)
	}

	auxData := zk.CompressedState{}
	if !zk.CheckProof(contract.DepositWithdraw, prevAccount.CompressedState, auxData, t.Data.NextState, t.Data.Proof) {
		return txSideEffect{}, ErrIncorrectZkProof
	}

	newAccount := ContractAccount{
		Height:          prevAccount.Height + 1,
		CompressedState: t.Data.NextState,
		Balance:         contractBalance,
	}
	accountOps, err := jsonOps(
		kvPair{contractAccountKey(cid), newAccount},
		kvPair{contractCompressedStateKey(cid, newAccount.Height), t.Data.NextState},
	)
	if err != nil {
		return txSideEffect{}, err
	}
	ops = append(ops, accountOps...)
	ov.Apply(ops)

	return txSideEffect{
		ContractID:     cid,
		HasStateChange: true,
		StateChange: compressedStateChange{
			PrevState: prevAccount.CompressedState,
			State:     t.Data.NextState,
		},
	}, nil
}

func (c *Chain) applyUpdate(ov *kv.Overlay, t *tx.Transaction) (txSideEffect, error) {
	cid := t.Data.ContractID
	contract, err := c.getContract(ov, cid)
	if err != nil {
		return txSideEffect{}, err
	}
	prevAccount, err := c.getContractAccount(ov, cid)
	if err != nil {
		return txSideEffect{}, err
	}
	vk, ok := contract.Functions[t.Data.FunctionID]
	if !ok {
		return txSideEffect{}, ErrContractFunctionNotFound
	}

	auxData := zk.CompressedState{}
	if !zk.CheckProof(vk, prevAccount.CompressedState, auxData, t.Data.NextState, t.Data.Proof) {
		return txSideEffect{}, ErrIncorrectZkProof
	}

	newAccount := ContractAccount{
		Height:          prevAccount.Height + 1,
		CompressedState: t.Data.NextState,
		Balance:         prevAccount.Balance,
	}
	ops, err := jsonOps(
		kvPair{contractAccountKey(cid), newAccount},
		kvPair{contractCompressedStateKey(cid, newAccount.Height), t.Data.NextState},
	)
	if err != nil {
		return txSideEffect{}, err
	}
	ov.Apply(ops)

	return txSideEffect{
		ContractID:     cid,
		HasStateChange: true,
		StateChange: compressedStateChange{
			PrevState: prevAccount.CompressedState,
			State:     t.Data.NextState,
		},
	}, nil
}

type kvPair struct {
	Key   string
	Value interface{}
}

func jsonOps(pairs ...kvPair) ([]kv.WriteOp, error) {
	ops := make([]kv.WriteOp, 0, len(pairs))
	for _, p := range pairs {
		op, err := putJSON(p.Key, p.Value)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}
