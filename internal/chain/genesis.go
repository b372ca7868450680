package chain

import (
	"sort"

	"github.com/klingnet-chain/zkchain/config"
	"github.com/klingnet-chain/zkchain/pkg/block"
	"github.com/klingnet-chain/zkchain/pkg/tx"
	"github.com/klingnet-chain/zkchain/pkg/types"
	"github.com/klingnet-chain/zkchain/pkg/zk"
)

// buildGenesisBlock turns a genesis configuration into the block 0 and
// empty state patch applied the first time a chain is opened against a
// fresh store. Each configured allocation becomes an Unsigned
// Treasury-sourced transfer; iterating Alloc in sorted address order
// keeps the resulting block deterministic across nodes despite Go's
// randomized map iteration.
func buildGenesisBlock(genesis *config.Genesis) (*block.Block, BlockchainPatch, error) {
	addrs := make([]string, 0, len(genesis.Alloc))
	for addr := range genesis.Alloc {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	body := make([]*tx.Transaction, 0, len(addrs))
	for i, addrStr := range addrs {
		dst, err := types.ParseAddress(addrStr)
		if err != nil {
			return nil, BlockchainPatch{}, err
		}
		body = append(body, &tx.Transaction{
			Src:   types.Treasury(),
			Nonce: uint64(i) + 1,
			Data:  tx.RegularSend(dst, types.Money(genesis.Alloc[addrStr])),
			Fee:   0,
			Sig:   tx.Unsigned(),
		})
	}

	hashes := make([]types.Hash, len(body))
	for i, t := range body {
		hashes[i] = t.Hash()
	}

	header := &block.Header{
		ParentHash: types.Hash{},
		Number:     0,
		BlockRoot:  block.ComputeMerkleRoot(hashes),
		Pow: block.ProofOfWork{
			Timestamp: genesis.Timestamp,
			Target:    genesis.InitialTarget,
			Nonce:     0,
		},
	}

	return block.NewBlock(header, body), BlockchainPatch{Patches: map[types.ContractID]zk.StatePatch{}}, nil
}
