package crypto

import (
	"math/big"

	"github.com/klingnet-chain/zkchain/pkg/types"
	"github.com/zeebo/blake3"
)

// targetCeiling is 2^256, the size of the hash space a PoW target is
// measured against.
var targetCeiling = new(big.Int).Lsh(big.NewInt(1), 256)

// bigFromHash interprets h as a 256-bit big-endian unsigned integer.
func bigFromHash(h types.Hash) *big.Int {
	return new(big.Int).SetBytes(h[:])
}

// hashFromBig renders x as a 256-bit big-endian Hash, clamping to the
// representable range so a target computation can never overflow the wire
// format.
func hashFromBig(x *big.Int) types.Hash {
	var h types.Hash
	if x.Sign() < 0 {
		return h
	}
	if x.Cmp(targetCeiling) >= 0 {
		for i := range h {
			h[i] = 0xff
		}
		return h
	}
	b := x.Bytes()
	copy(h[types.HashSize-len(b):], b)
	return h
}

// MeetsTarget reports whether hash, read as a 256-bit big-endian integer,
// is at or below target — the proof-of-work condition.
func MeetsTarget(hash, target types.Hash) bool {
	return bigFromHash(hash).Cmp(bigFromHash(target)) <= 0
}

// Work returns the expected number of hash attempts to meet target:
// floor(2^256 / (target+1)). Smaller targets (harder puzzles) yield
// larger work values, so cumulative work sums correctly across a chain.
func Work(target types.Hash) *big.Int {
	denom := new(big.Int).Add(bigFromHash(target), big.NewInt(1))
	return new(big.Int).Div(targetCeiling, denom)
}

// SeededHash hashes data under a 256-bit key, giving every proof-of-work
// key its own independent hash function. Rotating the key (pow_key) is
// what forces miners to re-derive their working set instead of reusing
// work across an epoch boundary; the hash family itself is opaque here,
// a stand-in for whatever memory-hard construction (RandomX and kin)
// production miners would actually run.
func SeededHash(key types.Hash, data []byte) types.Hash {
	h, err := blake3.NewKeyed(key[:])
	if err != nil {
		// key is always exactly 32 bytes (types.HashSize), so NewKeyed
		// cannot fail; panicking here would only mask a broken constant.
		return Hash(append(key[:], data...))
	}
	h.Write(data)
	var out types.Hash
	h.Sum(out[:0])
	return out
}

// ScaleDifficulty returns the target that is numerator/denominator times
// easier than target (a larger ratio raises the target, making the next
// interval's puzzle easier; a smaller ratio lowers it). numerator and
// denominator must both be positive.
func ScaleDifficulty(target types.Hash, numerator, denominator uint64) types.Hash {
	if denominator == 0 {
		denominator = 1
	}
	scaled := new(big.Int).Mul(bigFromHash(target), new(big.Int).SetUint64(numerator))
	scaled.Div(scaled, new(big.Int).SetUint64(denominator))
	return hashFromBig(scaled)
}
