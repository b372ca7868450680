// Package zk implements the compressed/full state tracking for ZK
// "rollup" contracts: state available off-chain, committed on-chain as a
// hash+size pair, re-hydrated on demand via full or delta state patches.
package zk

import (
	"sort"

	"github.com/klingnet-chain/zkchain/pkg/codec"
	"github.com/klingnet-chain/zkchain/pkg/crypto"
	"github.com/klingnet-chain/zkchain/pkg/types"
)

// StateModel describes the shape of a contract's state tree. Proof
// verification is pluggable (see VerifyingKey), so the model carries no
// fields the core chain logic needs to interpret — it exists so a real
// prover backend has somewhere to record tree depth, arity, and similar
// circuit parameters without changing the CompressedState wire format.
type StateModel struct {
	TreeDepth uint8 `json:"tree_depth"`
}

// CompressedState is the on-chain commitment to a contract's off-chain
// state: a hash of its content plus the number of populated keys.
type CompressedState struct {
	StateHash types.Hash `json:"state_hash"`
	Size      uint64     `json:"size"`
}

// CompressedStateChange records a contract's compressed state immediately
// before and after a state-mutating transaction.
type CompressedStateChange struct {
	PrevState CompressedState `json:"prev_state"`
	State     CompressedState `json:"state"`
}

// State is the full off-chain state of a deployed contract: a sparse
// key-value tree plus a bounded history of the deltas that produced it,
// used to support rollback and light delta-sync without keeping every
// historical delta forever.
type State struct {
	Height  uint64            `json:"height"`
	Data    map[string][]byte `json:"data"`
	History []StateDelta      `json:"history"`
}

// NewState returns the empty state at height 0.
func NewState() *State {
	return &State{Data: map[string][]byte{}}
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	out := &State{
		Height: s.Height,
		Data:   make(map[string][]byte, len(s.Data)),
	}
	for k, v := range s.Data {
		cp := make([]byte, len(v))
		copy(cp, v)
		out.Data[k] = cp
	}
	out.History = make([]StateDelta, len(s.History))
	copy(out.History, s.History)
	return out
}

// Compress derives the on-chain commitment for the current state: a hash
// over model.TreeDepth and the sorted key/value content, so the same
// content under models of different depth commits differently.
func (s *State) Compress(model StateModel) CompressedState {
	keys := make([]string, 0, len(s.Data))
	for k := range s.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w := codec.NewWriter()
	w.WriteU8(model.TreeDepth)
	w.WriteVarSeq(len(keys))
	for _, k := range keys {
		w.WriteVarBytes([]byte(k))
		w.WriteVarBytes(s.Data[k])
	}
	return CompressedState{
		StateHash: crypto.Hash(w.Bytes()),
		Size:      uint64(len(keys)),
	}
}
