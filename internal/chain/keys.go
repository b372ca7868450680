package chain

import (
	"encoding/json"
	"fmt"

	"github.com/klingnet-chain/zkchain/internal/kv"
	"github.com/klingnet-chain/zkchain/pkg/types"
)

// Key scheme: short ASCII prefixes plus zero-padded width-10 decimal
// indices, so lexicographic and numeric key ordering coincide for any
// future range scan over blocks or contract-state history.
const heightPad = "%010d"

func heightKey() string { return "height" }

func blockKey(n uint64) string    { return fmt.Sprintf("block_"+heightPad, n) }
func headerKey(n uint64) string   { return fmt.Sprintf("header_"+heightPad, n) }
func merkleKey(n uint64) string   { return fmt.Sprintf("merkle_"+heightPad, n) }
func rollbackKey(n uint64) string { return fmt.Sprintf("rollback_"+heightPad, n) }
func powerKey(n uint64) string    { return fmt.Sprintf("power_"+heightPad, n) }

func contractUpdatesKey(n uint64) string { return fmt.Sprintf("contract_updates_"+heightPad, n) }

func outdatedKey() string { return "outdated" }

func accountKey(addr types.Address) string { return "account_" + addr.String() }

func contractKey(cid types.ContractID) string        { return "contract_" + cid.String() }
func contractAccountKey(cid types.ContractID) string { return "contract_account_" + cid.String() }
func contractStateKey(cid types.ContractID) string   { return "contract_state_" + cid.String() }

func contractCompressedStateKey(cid types.ContractID, height uint64) string {
	return fmt.Sprintf("contract_compressed_state_%s_"+heightPad, cid.String(), height)
}

// reader is the read-only subset of kv.Store and *kv.Overlay both
// satisfy, so lookups work identically against the committed store and a
// speculative overlay.
type reader interface {
	Get(key string) ([]byte, bool, error)
}

// getJSON decodes the JSON-encoded value at key into out. Storage values
// use JSON rather than the canonical codec: the codec is reserved for
// objects whose bytes are consensus-hashed (headers, transactions,
// merkle nodes); ledger state that is only ever read back by the same
// process that wrote it has no such requirement, and JSON keeps every
// stored type trivially self-describing.
func getJSON(s reader, key string, out interface{}) (bool, error) {
	raw, ok, err := s.Get(key)
	if err != nil {
		return false, fmt.Errorf("chain: read %q: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("%w: decode %q: %v", ErrInconsistency, key, err)
	}
	return true, nil
}

func putJSON(key string, v interface{}) (kv.WriteOp, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return kv.WriteOp{}, fmt.Errorf("chain: encode %q: %w", key, err)
	}
	return kv.Put(key, raw), nil
}
