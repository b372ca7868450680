package block

import (
	"errors"
	"fmt"

	"github.com/klingnet-chain/zkchain/pkg/types"
)

// Structural validation errors. Consensus-level checks (parent linkage,
// PoW, median-time-past, difficulty retarget, miner reward shape) are
// the responsibility of the chain package, which has the state needed
// to evaluate them; this package only checks what a block can prove
// about itself.
var (
	ErrNilHeader     = errors.New("block has nil header")
	ErrBadMerkleRoot = errors.New("merkle root mismatch")
)

// Validate checks that the block is internally well-formed: it has a
// header, and that header's block_root matches the merkle root of the
// body.
func (b *Block) Validate() error {
	if b.Header == nil {
		return ErrNilHeader
	}

	txHashes := make([]types.Hash, len(b.Body))
	for i, t := range b.Body {
		txHashes[i] = t.Hash()
	}
	expectedRoot := ComputeMerkleRoot(txHashes)
	if b.Header.BlockRoot != expectedRoot {
		return fmt.Errorf("%w: header=%s computed=%s", ErrBadMerkleRoot, b.Header.BlockRoot, expectedRoot)
	}

	return nil
}

// Size returns the byte length of the block's body, used against
// MaxDeltaSize alongside the ZK state-size delta.
func (b *Block) Size() int {
	n := 0
	for _, t := range b.Body {
		n += t.Size()
	}
	return n
}
