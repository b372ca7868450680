package chain

import "errors"

// Input validation.
var (
	ErrSignatureError          = errors.New("chain: transaction signature is invalid")
	ErrBalanceInsufficient     = errors.New("chain: balance insufficient")
	ErrInvalidTransactionNonce = errors.New("chain: transaction nonce invalid")
	ErrIllegalTreasuryAccess   = errors.New("chain: illegal access to treasury funds")
	ErrInvalidMinerReward      = errors.New("chain: miner reward transaction is invalid")
	ErrMinerRewardNotFound     = errors.New("chain: miner reward not present")
	ErrBlockTooBig             = errors.New("chain: block too big")
	ErrIncorrectZkProof        = errors.New("chain: incorrect zero-knowledge proof")
	ErrContractNotFound        = errors.New("chain: contract not found")
	ErrContractFunctionNotFound = errors.New("chain: update function not found in the given contract")
)

// Header / linkage.
var (
	ErrInvalidBlockNumber    = errors.New("chain: block number invalid")
	ErrInvalidParentHash     = errors.New("chain: parent hash invalid")
	ErrInvalidMerkleRoot     = errors.New("chain: merkle root invalid")
	ErrInvalidTimestamp      = errors.New("chain: block timestamp is before median-time-past")
	ErrDifficultyTargetUnmet = errors.New("chain: unmet difficulty target")
	ErrDifficultyTargetWrong = errors.New("chain: wrong difficulty target on block")
)

// Topology.
var (
	ErrBlockNotFound       = errors.New("chain: block not found")
	ErrNoBlocksToRollback  = errors.New("chain: no blocks to roll back")
	ErrExtendFromGenesis   = errors.New("chain: cannot extend from the genesis block")
	ErrExtendFromFuture    = errors.New("chain: cannot extend from a future height")
)

// State availability.
var (
	ErrStatesOutdated          = errors.New("chain: cannot draft a new block while states are outdated")
	ErrStatesUnavailable       = errors.New("chain: contract states at requested tip are unavailable")
	ErrFullStateNotFound       = errors.New("chain: full state not found in the supplied patch")
	ErrFullStateNotValid       = errors.New("chain: full state in the supplied patch does not match the recorded commitment")
	ErrDeltasInvalid           = errors.New("chain: full state has invalid deltas")
	ErrCompressedStateNotFound = errors.New("chain: compressed state at requested height not found")
)

// Storage.
var (
	ErrInconsistency = errors.New("chain: inconsistency (decode failed or a key the invariants require is missing)")
)
