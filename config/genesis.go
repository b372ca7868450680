package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/klingnet-chain/zkchain/pkg/crypto"
	"github.com/klingnet-chain/zkchain/pkg/types"
)

// Denomination constants. 1 coin = 10^12 base units. All on-chain values
// are in base units.
const (
	Decimals  = 12
	Coin      = 1_000_000_000_000 // 10^12 base units per coin
	MilliCoin = 1_000_000_000     // 10^9
	MicroCoin = 1_000_000         // 10^6
)

// Params holds the consensus-critical constants every node must agree on.
// Unlike Config, these are never read from a local flags/file source —
// they come only from genesis, since a node that disagrees with its
// peers about them cannot stay on the same chain.
type Params struct {
	// TotalSupply is the fixed total coin supply in base units. The
	// treasury account starts holding all of it and pays it out as block
	// rewards over time.
	TotalSupply uint64 `json:"total_supply"`

	// RewardRatio sets the next block reward to Treasury.Balance /
	// RewardRatio, so the reward decays geometrically as the treasury
	// empties.
	RewardRatio uint64 `json:"reward_ratio"`

	// BlockTime is the target number of seconds between blocks.
	BlockTime uint64 `json:"block_time"`

	// DifficultyCalcInterval is the number of blocks between difficulty
	// retargets. Block numbers that are not a multiple of this interval
	// must carry the same target as the previous header.
	DifficultyCalcInterval uint64 `json:"difficulty_calc_interval"`

	// MedianTimestampCount is the number of trailing block timestamps
	// used to compute the median-time-past floor for a new header's
	// timestamp.
	MedianTimestampCount uint64 `json:"median_timestamp_count"`

	// PowBaseKey seeds the PoW key schedule before the first rotation.
	PowBaseKey types.Hash `json:"pow_base_key"`

	// PowKeyChangeDelay is the number of blocks before the PoW key is
	// first allowed to rotate away from PowBaseKey.
	PowKeyChangeDelay uint64 `json:"pow_key_change_delay"`

	// PowKeyChangeInterval is the spacing, in blocks, between PoW key
	// rotations once rotation has started.
	PowKeyChangeInterval uint64 `json:"pow_key_change_interval"`

	// MaxDeltaSize bounds the combined transaction-body and ZK-state-delta
	// size a block may introduce, so block application cost stays
	// predictable regardless of how much contract state moves.
	MaxDeltaSize uint64 `json:"max_delta_size"`

	// NumStateDeltasKeep is the number of trailing per-contract state
	// deltas retained on disk. Contracts whose state fell further behind
	// than this must be re-hydrated with a full state patch rather than a
	// delta patch.
	NumStateDeltasKeep uint64 `json:"num_state_deltas_keep"`
}

// Genesis holds the genesis block configuration: chain identity, initial
// allocations, and the consensus parameters. Immutable after chain
// launch — any change requires a new chain.
type Genesis struct {
	ChainID   string `json:"chain_id"`
	ChainName string `json:"chain_name"`
	Symbol    string `json:"symbol,omitempty"`

	Timestamp uint64 `json:"timestamp"`
	ExtraData string `json:"extra_data,omitempty"`

	// InitialTarget is the PoW target the genesis block (and every block
	// before the first retarget boundary) must meet.
	InitialTarget types.Hash `json:"initial_target"`

	// Alloc credits non-treasury accounts at genesis (address -> balance
	// in base units). The treasury implicitly holds
	// Params.TotalSupply - sum(Alloc) after these are applied.
	Alloc map[string]uint64 `json:"alloc"`

	Params Params `json:"params"`
}

// =============================================================================
// Pre-defined genesis configurations
// =============================================================================

// defaultParams returns the consensus parameters shared by the built-in
// mainnet and testnet genesis configurations.
func defaultParams() Params {
	return Params{
		TotalSupply:            21_000_000 * Coin,
		RewardRatio:            100_000,
		BlockTime:              30,
		DifficultyCalcInterval: 128,
		MedianTimestampCount:   11,
		PowKeyChangeDelay:      64,
		PowKeyChangeInterval:   128,
		MaxDeltaSize:           2_000_000,
		NumStateDeltasKeep:     10,
	}
}

// MainnetGenesis returns the mainnet genesis configuration.
func MainnetGenesis() *Genesis {
	var target types.Hash
	target[0] = 0x00
	target[1] = 0x00
	target[2] = 0x0f // easy enough for test mining, tightened by real retargets

	return &Genesis{
		ChainID:       "zkchain-mainnet-1",
		ChainName:     "Zkchain Mainnet",
		Symbol:        "ZKC",
		Timestamp:     1770734103, // 2026-02-10
		ExtraData:     "zkchain genesis",
		InitialTarget: target,
		Alloc:         map[string]uint64{},
		Params:        defaultParams(),
	}
}

// TestnetGenesis returns the testnet genesis configuration.
func TestnetGenesis() *Genesis {
	g := MainnetGenesis()
	g.ChainID = "zkchain-testnet-1"
	g.ChainName = "Zkchain Testnet"
	g.ExtraData = "zkchain testnet genesis"
	g.Params.BlockTime = 5
	g.Params.DifficultyCalcInterval = 16
	g.Params.PowKeyChangeDelay = 8
	g.Params.PowKeyChangeInterval = 16
	// Testnet target is far looser so CPU mining in tests/CI stays fast.
	g.InitialTarget[0] = 0x0f
	return g
}

// GenesisFor returns the genesis config for the given network.
func GenesisFor(network NetworkType) *Genesis {
	switch network {
	case Testnet:
		return TestnetGenesis()
	default:
		return MainnetGenesis()
	}
}

// =============================================================================
// Genesis file I/O
// =============================================================================

// LoadGenesis loads genesis configuration from a file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading genesis file: %w", err)
	}

	var g Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing genesis file: %w", err)
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}

	return &g, nil
}

// Save writes the genesis configuration to a file.
func (g *Genesis) Save(path string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding genesis: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing genesis file: %w", err)
	}

	return nil
}

// Validate checks that the genesis configuration is internally consistent.
func (g *Genesis) Validate() error {
	if g.ChainID == "" {
		return fmt.Errorf("chain_id is required")
	}
	if g.Params.TotalSupply == 0 {
		return fmt.Errorf("params.total_supply must be positive")
	}
	if g.Params.RewardRatio == 0 {
		return fmt.Errorf("params.reward_ratio must be positive")
	}
	if g.Params.BlockTime == 0 {
		return fmt.Errorf("params.block_time must be positive")
	}
	if g.Params.DifficultyCalcInterval < 2 {
		return fmt.Errorf("params.difficulty_calc_interval must be at least 2")
	}
	if g.Params.MedianTimestampCount == 0 {
		return fmt.Errorf("params.median_timestamp_count must be positive")
	}

	var totalAlloc uint64
	for addrStr, v := range g.Alloc {
		addr, err := types.ParseAddress(addrStr)
		if err != nil {
			return fmt.Errorf("invalid alloc address %q: %w", addrStr, err)
		}
		if addr.IsTreasury() {
			return fmt.Errorf("alloc must not credit the treasury address directly")
		}
		totalAlloc += v
	}
	if totalAlloc > g.Params.TotalSupply {
		return fmt.Errorf("genesis allocations (%d) exceed total_supply (%d)", totalAlloc, g.Params.TotalSupply)
	}

	return nil
}

// Hash returns a BLAKE3 hash of the genesis configuration, used to detect
// genesis mismatches between peers.
func (g *Genesis) Hash() (types.Hash, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.Hash(data), nil
}
