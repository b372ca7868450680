// Package block defines the block type, its header, and the structural
// validation applied before a block is handed to the ledger.
package block

import (
	"github.com/klingnet-chain/zkchain/pkg/tx"
	"github.com/klingnet-chain/zkchain/pkg/types"
)

// Block is a header plus its ordered body of transactions. The first
// transaction in a non-genesis block's body must be the miner reward.
type Block struct {
	Header *Header           `json:"header"`
	Body   []*tx.Transaction `json:"body"`
}

// NewBlock creates a new block with the given header and body.
func NewBlock(header *Header, body []*tx.Transaction) *Block {
	return &Block{
		Header: header,
		Body:   body,
	}
}

// Hash returns the block's identity, which is its header's hash.
func (b *Block) Hash() types.Hash {
	return b.Header.Hash()
}
