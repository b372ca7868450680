// Package tx defines the transaction types that make up a block body:
// plain transfers, contract creation, and the two ZK state-transition
// variants (deposit/withdraw and update).
package tx

import (
	"github.com/klingnet-chain/zkchain/pkg/codec"
	"github.com/klingnet-chain/zkchain/pkg/crypto"
	"github.com/klingnet-chain/zkchain/pkg/types"
	"github.com/klingnet-chain/zkchain/pkg/zk"
)

// SignatureKind discriminates the two Signature variants. Kept as an
// explicit leading tag byte in the canonical encoding so Unsigned and
// Signed transactions can never collide on the wire.
type SignatureKind byte

const (
	SigUnsigned SignatureKind = 0
	SigSigned   SignatureKind = 1
)

// Signature is a tagged union: a transaction is either Unsigned (only
// legal for Treasury-sourced transactions in miner-reward and genesis
// contexts) or Signed with a raw signature over the transaction's
// canonical encoding with this field replaced by Unsigned.
type Signature struct {
	Kind  SignatureKind `json:"kind"`
	Bytes []byte        `json:"bytes,omitempty"`
}

// Unsigned returns the Unsigned signature variant.
func Unsigned() Signature { return Signature{Kind: SigUnsigned} }

// Signed wraps a raw signature as the Signed variant.
func Signed(sig []byte) Signature { return Signature{Kind: SigSigned, Bytes: sig} }

func (s Signature) writeTo(w *codec.Writer) {
	w.WriteTag(byte(s.Kind))
	if s.Kind == SigSigned {
		w.WriteVarBytes(s.Bytes)
	}
}

// DataKind discriminates the four TransactionData variants.
type DataKind byte

const (
	DataRegularSend     DataKind = 0
	DataCreateContract  DataKind = 1
	DataDepositWithdraw DataKind = 2
	DataUpdate          DataKind = 3
)

// DepositWithdrawItem moves value between an account and a contract in
// a single deposit/withdraw transaction.
type DepositWithdrawItem struct {
	Address  types.Address `json:"address"`
	Amount   types.Money   `json:"amount"`
	Withdraw bool          `json:"withdraw"`
}

func (it DepositWithdrawItem) writeTo(w *codec.Writer) {
	w.WriteFixed(it.Address.Bytes())
	w.WriteU64(uint64(it.Amount))
	if it.Withdraw {
		w.WriteU8(1)
	} else {
		w.WriteU8(0)
	}
}

// TransactionData is the tagged union of things a transaction can do.
// Exactly one of the embedded variant structs is populated, matching
// Kind.
type TransactionData struct {
	Kind DataKind `json:"kind"`

	// RegularSend
	Dst    types.Address `json:"dst,omitempty"`
	Amount types.Money   `json:"amount,omitempty"`

	// CreateContract
	Contract *zk.Contract `json:"contract,omitempty"`

	// DepositWithdraw / Update share ContractID, NextState, Proof.
	ContractID types.ContractID      `json:"contract_id,omitempty"`
	Items      []DepositWithdrawItem `json:"items,omitempty"`
	NextState  zk.CompressedState    `json:"next_state,omitempty"`
	Proof      zk.Proof              `json:"proof,omitempty"`

	// Update
	FunctionID uint32 `json:"function_id,omitempty"`
}

// RegularSend builds a plain-transfer transaction payload.
func RegularSend(dst types.Address, amount types.Money) TransactionData {
	return TransactionData{Kind: DataRegularSend, Dst: dst, Amount: amount}
}

// CreateContract builds a contract-creation transaction payload.
func CreateContract(contract *zk.Contract) TransactionData {
	return TransactionData{Kind: DataCreateContract, Contract: contract}
}

// DepositWithdraw builds a deposit/withdraw transaction payload.
func DepositWithdraw(cid types.ContractID, items []DepositWithdrawItem, next zk.CompressedState, proof zk.Proof) TransactionData {
	return TransactionData{Kind: DataDepositWithdraw, ContractID: cid, Items: items, NextState: next, Proof: proof}
}

// Update builds a contract-function transaction payload.
func Update(cid types.ContractID, functionID uint32, next zk.CompressedState, proof zk.Proof) TransactionData {
	return TransactionData{Kind: DataUpdate, ContractID: cid, FunctionID: functionID, NextState: next, Proof: proof}
}

func (d TransactionData) writeTo(w *codec.Writer) {
	w.WriteTag(byte(d.Kind))
	switch d.Kind {
	case DataRegularSend:
		w.WriteFixed(d.Dst.Bytes())
		w.WriteU64(uint64(d.Amount))
	case DataCreateContract:
		writeContract(w, d.Contract)
	case DataDepositWithdraw:
		w.WriteFixed(d.ContractID.Bytes())
		w.WriteVarSeq(len(d.Items))
		for _, it := range d.Items {
			it.writeTo(w)
		}
		writeCompressedState(w, d.NextState)
		w.WriteVarBytes(d.Proof)
	case DataUpdate:
		w.WriteFixed(d.ContractID.Bytes())
		w.WriteU32(d.FunctionID)
		writeCompressedState(w, d.NextState)
		w.WriteVarBytes(d.Proof)
	}
}

func writeCompressedState(w *codec.Writer, s zk.CompressedState) {
	w.WriteFixed(s.StateHash.Bytes())
	w.WriteU64(s.Size)
}

func writeVerifyingKey(w *codec.Writer, vk zk.VerifyingKey) {
	w.WriteTag(byte(vk.Kind))
	w.WriteVarBytes(vk.Data)
}

func writeContract(w *codec.Writer, c *zk.Contract) {
	if c == nil {
		w.WriteU8(0)
		writeCompressedState(w, zk.CompressedState{})
		writeVerifyingKey(w, zk.VerifyingKey{})
		w.WriteVarSeq(0)
		return
	}
	w.WriteU8(c.Model.TreeDepth)
	writeCompressedState(w, c.InitialState)
	writeVerifyingKey(w, c.DepositWithdraw)
	w.WriteVarSeq(len(c.Functions))
	for _, id := range sortedFunctionIDs(c.Functions) {
		w.WriteU32(id)
		writeVerifyingKey(w, c.Functions[id])
	}
}

func sortedFunctionIDs(m map[uint32]zk.VerifyingKey) []uint32 {
	ids := make([]uint32, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	return ids
}

// Transaction is a single state-changing operation originating from one
// account. Signature verification (for non-Treasury sources) covers the
// canonical encoding with Sig replaced by Unsigned.
type Transaction struct {
	Src   types.Address   `json:"src"`
	Nonce uint64          `json:"nonce"`
	Data  TransactionData `json:"data"`
	Fee   types.Money     `json:"fee"`
	Sig   Signature       `json:"sig"`
}

// SigningBytes returns the canonical encoding with Sig forced to
// Unsigned, the payload that is actually signed and verified.
func (t *Transaction) SigningBytes() []byte {
	w := codec.NewWriter()
	w.WriteFixed(t.Src.Bytes())
	w.WriteU64(t.Nonce)
	t.Data.writeTo(w)
	w.WriteU64(uint64(t.Fee))
	Unsigned().writeTo(w)
	return w.Bytes()
}

// CanonicalBytes returns the full canonical encoding including the
// actual signature, used for the transaction hash and ContractID
// derivation.
func (t *Transaction) CanonicalBytes() []byte {
	w := codec.NewWriter()
	w.WriteFixed(t.Src.Bytes())
	w.WriteU64(t.Nonce)
	t.Data.writeTo(w)
	w.WriteU64(uint64(t.Fee))
	t.Sig.writeTo(w)
	return w.Bytes()
}

// Hash returns the transaction's content hash over its full canonical
// encoding (including the signature).
func (t *Transaction) Hash() types.Hash {
	return crypto.Hash(t.CanonicalBytes())
}

// ContractID derives the identifier of the contract this transaction
// creates, if it is a CreateContract transaction.
func (t *Transaction) ContractID() types.ContractID {
	return types.ContractID(t.Hash())
}

// Size returns the byte length of the transaction's canonical
// encoding, used for block-size accounting against MaxDeltaSize.
func (t *Transaction) Size() int {
	return len(t.CanonicalBytes())
}

// VerifySignature checks the transaction's signature against its
// SigningBytes. Treasury-sourced transactions are not checked here;
// callers must gate treasury access separately (allow_treasury).
func (t *Transaction) VerifySignature() bool {
	if t.Sig.Kind != SigSigned {
		return false
	}
	if t.Src.Kind != types.AddressPublicKey {
		return false
	}
	msg := crypto.Hash(t.SigningBytes())
	return crypto.VerifySignature(msg[:], t.Sig.Bytes, t.Src.PubKey[:])
}

// TransactionAndDelta pairs a transaction with the state delta it
// produced (or will produce) on the contract it touches, if any. This
// is what the mempool holds and what draft_block returns alongside the
// block.
type TransactionAndDelta struct {
	Tx         Transaction    `json:"tx"`
	StateDelta *zk.StateDelta `json:"state_delta,omitempty"`
}
