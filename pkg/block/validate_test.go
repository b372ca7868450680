package block

import (
	"errors"
	"testing"

	"github.com/klingnet-chain/zkchain/pkg/tx"
	"github.com/klingnet-chain/zkchain/pkg/types"
)

func samplePubKey(fill byte) [types.PubKeySize]byte {
	var pk [types.PubKeySize]byte
	for i := range pk {
		pk[i] = fill
	}
	return pk
}

func minerRewardTx(amount types.Money) *tx.Transaction {
	return &tx.Transaction{
		Src:  types.Treasury(),
		Data: tx.RegularSend(types.NewPublicKeyAddress(samplePubKey(1)), amount),
		Sig:  tx.Unsigned(),
	}
}

// validBlock creates a minimal well-formed block with a correct merkle root.
func validBlock(t *testing.T) *Block {
	t.Helper()

	reward := minerRewardTx(100)
	merkleRoot := ComputeMerkleRoot([]types.Hash{reward.Hash()})

	header := &Header{
		ParentHash: types.Hash{0xaa},
		Number:     1,
		BlockRoot:  merkleRoot,
		Pow:        ProofOfWork{Timestamp: 1700000000},
	}

	return NewBlock(header, []*tx.Transaction{reward})
}

func TestBlock_Validate_Valid(t *testing.T) {
	blk := validBlock(t)
	if err := blk.Validate(); err != nil {
		t.Errorf("valid block should pass: %v", err)
	}
}

func TestBlock_Validate_NilHeader(t *testing.T) {
	blk := &Block{Header: nil}
	err := blk.Validate()
	if !errors.Is(err, ErrNilHeader) {
		t.Errorf("expected ErrNilHeader, got: %v", err)
	}
}

func TestBlock_Validate_BadMerkleRoot(t *testing.T) {
	blk := validBlock(t)
	blk.Header.BlockRoot = types.Hash{0xde, 0xad}
	err := blk.Validate()
	if !errors.Is(err, ErrBadMerkleRoot) {
		t.Errorf("expected ErrBadMerkleRoot, got: %v", err)
	}
}

func TestBlock_Validate_EmptyBody(t *testing.T) {
	blk := NewBlock(&Header{BlockRoot: types.Hash{}}, nil)
	if err := blk.Validate(); err != nil {
		t.Errorf("empty body with zero root should validate: %v", err)
	}
}

func TestBlock_Validate_MultipleTxs(t *testing.T) {
	reward := minerRewardTx(100)
	t1 := &tx.Transaction{
		Src:   types.NewPublicKeyAddress(samplePubKey(2)),
		Nonce: 1,
		Data:  tx.RegularSend(types.NewPublicKeyAddress(samplePubKey(3)), 5),
		Fee:   1,
		Sig:   tx.Signed([]byte{1, 2, 3}),
	}
	t2 := &tx.Transaction{
		Src:   types.NewPublicKeyAddress(samplePubKey(4)),
		Nonce: 1,
		Data:  tx.RegularSend(types.NewPublicKeyAddress(samplePubKey(5)), 9),
		Fee:   1,
		Sig:   tx.Signed([]byte{4, 5, 6}),
	}

	txs := []*tx.Transaction{reward, t1, t2}
	hashes := make([]types.Hash, len(txs))
	for i, tr := range txs {
		hashes[i] = tr.Hash()
	}
	merkle := ComputeMerkleRoot(hashes)

	blk := NewBlock(&Header{Number: 5, BlockRoot: merkle}, txs)
	if err := blk.Validate(); err != nil {
		t.Errorf("multi-tx block should validate: %v", err)
	}
}

func TestBlock_Size_SumsTransactionSizes(t *testing.T) {
	reward := minerRewardTx(100)
	other := &tx.Transaction{
		Src:   types.NewPublicKeyAddress(samplePubKey(2)),
		Nonce: 1,
		Data:  tx.RegularSend(types.NewPublicKeyAddress(samplePubKey(3)), 5),
		Sig:   tx.Signed([]byte{1, 2, 3}),
	}
	blk := NewBlock(&Header{}, []*tx.Transaction{reward, other})

	want := reward.Size() + other.Size()
	if got := blk.Size(); got != want {
		t.Errorf("Size() = %d, want %d", got, want)
	}
}

func TestBlock_Size_EmptyBody(t *testing.T) {
	blk := NewBlock(&Header{}, nil)
	if blk.Size() != 0 {
		t.Errorf("empty body should have size 0, got %d", blk.Size())
	}
}

func TestHeader_Hash_Deterministic(t *testing.T) {
	h := &Header{
		ParentHash: types.Hash{0x01},
		Number:     1,
		Pow:        ProofOfWork{Timestamp: 1700000000},
	}

	h1 := h.Hash()
	h2 := h.Hash()
	if h1 != h2 {
		t.Error("Header.Hash() should be deterministic")
	}
	if h1.IsZero() {
		t.Error("Header.Hash() should not be zero")
	}
}

func TestHeader_Hash_SensitiveToNonce(t *testing.T) {
	h := &Header{ParentHash: types.Hash{0x01}, Number: 1}
	h1 := h.Hash()

	h.Pow.Nonce = 42
	h2 := h.Hash()

	if h1 == h2 {
		t.Error("Header.Hash() should change when the PoW nonce changes")
	}
}

func TestHeader_BytesWithoutNonce_IgnoresNonce(t *testing.T) {
	h := &Header{ParentHash: types.Hash{0x01}, Number: 1, Pow: ProofOfWork{Timestamp: 5, Nonce: 1}}
	b1 := h.BytesWithoutNonce()

	h.Pow.Nonce = 999999
	b2 := h.BytesWithoutNonce()

	if string(b1) != string(b2) {
		t.Error("BytesWithoutNonce should not depend on the nonce")
	}
}

func TestBlock_Hash(t *testing.T) {
	blk := validBlock(t)
	h := blk.Hash()
	if h.IsZero() {
		t.Error("Block.Hash() should not be zero")
	}
}
