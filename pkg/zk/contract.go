package zk

import (
	"github.com/klingnet-chain/zkchain/pkg/codec"
	"github.com/klingnet-chain/zkchain/pkg/crypto"
	"github.com/klingnet-chain/zkchain/pkg/types"
)

// VerifyingKeyKind discriminates the proving system a VerifyingKey was
// issued by. The chain's state-transition logic never branches on it; it
// exists so a real prover backend can dispatch to the right verifier.
type VerifyingKeyKind byte

const (
	// VKGroth16 marks a Groth16 verifying key.
	VKGroth16 VerifyingKeyKind = 0
	// VKPlonk marks a Plonk verifying key.
	VKPlonk VerifyingKeyKind = 1
	// VKDummy marks a key used only in tests and local development: proof
	// bytes are checked structurally rather than cryptographically.
	VKDummy VerifyingKeyKind = 2
)

// VerifyingKey opaquely identifies the circuit a contract function must
// satisfy. Data is proving-system-specific key material, opaque to the
// chain.
type VerifyingKey struct {
	Kind VerifyingKeyKind `json:"kind"`
	Data []byte           `json:"data,omitempty"`
}

// Contract is the on-chain definition of a deployed ZK contract: the
// compressed state it was deployed with, and the verifying keys its
// deposit/withdraw and update functions must satisfy.
type Contract struct {
	Model          StateModel              `json:"model"`
	InitialState   CompressedState         `json:"initial_state"`
	DepositWithdraw VerifyingKey           `json:"deposit_withdraw"`
	Functions      map[uint32]VerifyingKey `json:"functions"`
}

// Proof is an opaque proof blob produced by whatever prover backend a
// VerifyingKey's Kind designates.
type Proof []byte

// CheckProof verifies that proof attests to a valid transition from
// prevState to nextState (with auxData as any additional public input,
// e.g. deposit/withdraw amounts) under vk.
//
// Real Groth16/Plonk verification is out of scope for the core chain
// logic (vk.Data is opaque key material for whichever backend a node
// operator wires in); VKDummy keys — the only kind the test suite and
// local genesis fixtures use — are checked structurally: the proof must
// equal the canonical commitment to (prevState, auxData, nextState),
// which is forgeable only by a party that already knows the values being
// attested to.
func CheckProof(vk VerifyingKey, prevState, auxData, nextState CompressedState, proof Proof) bool {
	switch vk.Kind {
	case VKDummy:
		return commitmentOf(prevState, auxData, nextState) == hashFromBytes(proof)
	default:
		return false
	}
}

func commitmentOf(prevState, auxData, nextState CompressedState) types.Hash {
	w := codec.NewWriter()
	w.WriteFixed(prevState.StateHash[:])
	w.WriteU64(prevState.Size)
	w.WriteFixed(auxData.StateHash[:])
	w.WriteU64(auxData.Size)
	w.WriteFixed(nextState.StateHash[:])
	w.WriteU64(nextState.Size)
	return crypto.Hash(w.Bytes())
}

// DummyProve builds the proof bytes CheckProof accepts for a VKDummy key,
// for use by test fixtures and local tooling that need to mint valid
// transactions without a real prover.
func DummyProve(prevState, auxData, nextState CompressedState) Proof {
	h := commitmentOf(prevState, auxData, nextState)
	return Proof(h[:])
}

func hashFromBytes(b []byte) types.Hash {
	var h types.Hash
	copy(h[:], b)
	return h
}
