package chain

import (
	"github.com/klingnet-chain/zkchain/pkg/types"
	"github.com/klingnet-chain/zkchain/pkg/zk"
)

// Account is a plain-transfer balance and nonce, keyed by address. The
// zero value is the default for any address never yet credited; the
// treasury's default is the genesis total supply instead of zero, since
// it starts out holding every base unit that hasn't been paid out yet.
type Account struct {
	Balance types.Money `json:"balance"`
	Nonce   uint64      `json:"nonce"`
}

// ContractAccount is the on-chain side of a deployed ZK contract: how
// many state-changing transactions it has seen, the compressed
// commitment to its current off-chain state, and the value it holds via
// DepositWithdraw transactions.
type ContractAccount struct {
	Height          uint64             `json:"height"`
	CompressedState zk.CompressedState `json:"compressed_state"`
	Balance         types.Money        `json:"balance"`
}

func (c *Chain) getAccount(r reader, addr types.Address) (Account, error) {
	var acc Account
	ok, err := getJSON(r, accountKey(addr), &acc)
	if err != nil {
		return Account{}, err
	}
	if !ok {
		if addr.IsTreasury() {
			return Account{Balance: types.Money(c.genesis.Params.TotalSupply)}, nil
		}
		return Account{}, nil
	}
	return acc, nil
}

// GetAccount returns the current balance and nonce for addr.
func (c *Chain) GetAccount(addr types.Address) (Account, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.getAccount(c.store, addr)
}

func (c *Chain) getContract(r reader, cid types.ContractID) (*zk.Contract, error) {
	var ct zk.Contract
	ok, err := getJSON(r, contractKey(cid), &ct)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrContractNotFound
	}
	return &ct, nil
}

// GetContract returns the definition of a deployed contract.
func (c *Chain) GetContract(cid types.ContractID) (*zk.Contract, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.getContract(c.store, cid)
}

func (c *Chain) getContractAccount(r reader, cid types.ContractID) (ContractAccount, error) {
	var ca ContractAccount
	ok, err := getJSON(r, contractAccountKey(cid), &ca)
	if err != nil {
		return ContractAccount{}, err
	}
	if !ok {
		return ContractAccount{}, ErrContractNotFound
	}
	return ca, nil
}

// GetContractAccount returns the ledger-side record of a deployed contract.
func (c *Chain) GetContractAccount(cid types.ContractID) (ContractAccount, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.getContractAccount(c.store, cid)
}

func (c *Chain) getState(r reader, cid types.ContractID) (*zk.State, error) {
	var st zk.State
	ok, err := getJSON(r, contractStateKey(cid), &st)
	if err != nil {
		return nil, err
	}
	if !ok {
		return zk.NewState(), nil
	}
	return &st, nil
}

// GetState returns the locally-known full state of a contract, or an
// empty state at height 0 if none has been supplied yet (the contract is
// outdated).
func (c *Chain) GetState(cid types.ContractID) (*zk.State, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.getState(c.store, cid)
}

func (c *Chain) getCompressedStateAt(r reader, cid types.ContractID, index uint64) (zk.CompressedState, error) {
	ca, err := c.getContractAccount(r, cid)
	if err != nil {
		return zk.CompressedState{}, err
	}
	if index >= ca.Height {
		return zk.CompressedState{}, ErrCompressedStateNotFound
	}
	if index == 0 {
		ct, err := c.getContract(r, cid)
		if err != nil {
			return zk.CompressedState{}, err
		}
		return zk.NewState().Compress(ct.Model), nil
	}
	var cs zk.CompressedState
	ok, err := getJSON(r, contractCompressedStateKey(cid, index), &cs)
	if err != nil {
		return zk.CompressedState{}, err
	}
	if !ok {
		return zk.CompressedState{}, ErrInconsistency
	}
	return cs, nil
}
