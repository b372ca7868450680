package block

import (
	"github.com/klingnet-chain/zkchain/pkg/codec"
	"github.com/klingnet-chain/zkchain/pkg/crypto"
	"github.com/klingnet-chain/zkchain/pkg/types"
)

// ProofOfWork carries the fields a miner searches over to satisfy a
// target, plus the timestamp the miner committed to.
type ProofOfWork struct {
	Timestamp uint64     `json:"timestamp"`
	Target    types.Hash `json:"target"`
	Nonce     uint64     `json:"nonce"`
}

func (p ProofOfWork) writeTo(w *codec.Writer) {
	w.WriteU64(p.Timestamp)
	w.WriteFixed(p.Target.Bytes())
	w.WriteU64(p.Nonce)
}

// Header is block metadata: parentage, the body commitment, and the PoW
// fields that seal it.
type Header struct {
	ParentHash types.Hash  `json:"parent_hash"`
	Number     uint64      `json:"number"`
	BlockRoot  types.Hash  `json:"block_root"`
	Pow        ProofOfWork `json:"proof_of_work"`
}

// SigningBytes returns the canonical encoding used both to hash the
// header and to seed the PoW search (minus the nonce, concatenated with
// it per the proof-of-work primitive).
func (h *Header) SigningBytes() []byte {
	w := codec.NewWriter()
	w.WriteFixed(h.ParentHash.Bytes())
	w.WriteU64(h.Number)
	w.WriteFixed(h.BlockRoot.Bytes())
	h.Pow.writeTo(w)
	return w.Bytes()
}

// BytesWithoutNonce returns the canonical encoding of everything the PoW
// hash commits to except the nonce, so a miner can hash
// BytesWithoutNonce || nonce repeatedly while only the nonce varies.
func (h *Header) BytesWithoutNonce() []byte {
	w := codec.NewWriter()
	w.WriteFixed(h.ParentHash.Bytes())
	w.WriteU64(h.Number)
	w.WriteFixed(h.BlockRoot.Bytes())
	w.WriteU64(h.Pow.Timestamp)
	w.WriteFixed(h.Pow.Target.Bytes())
	return w.Bytes()
}

// Hash computes the header's content hash, used as the parent_hash of
// the next header and as the chain tip identifier.
func (h *Header) Hash() types.Hash {
	return crypto.Hash(h.SigningBytes())
}
