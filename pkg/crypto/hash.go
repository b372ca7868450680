// Package crypto provides the hashing, signing, and proof-of-work
// primitives used throughout the chain.
package crypto

import (
	"github.com/klingnet-chain/zkchain/pkg/types"
	"github.com/zeebo/blake3"
)

// Hash computes a BLAKE3-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// DoubleHash computes Hash(Hash(data)).
func DoubleHash(data []byte) types.Hash {
	first := Hash(data)
	return Hash(first[:])
}

// AddressFromPubKey builds the public-key Address that owns pubKey.
// Addresses carry the public key itself rather than a hash of it, since
// a signature must be verifiable against the address directly.
func AddressFromPubKey(pubKey [types.PubKeySize]byte) types.Address {
	return types.NewPublicKeyAddress(pubKey)
}

// HashConcat hashes the concatenation of two hashes. Used for building
// merkle trees.
func HashConcat(a, b types.Hash) types.Hash {
	var buf [64]byte
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	return Hash(buf[:])
}
