package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/klingnet-chain/zkchain/pkg/codec"
)

// PubKeySize is the length of a compressed secp256k1 public key in bytes.
const PubKeySize = 33

// AddressKind discriminates the two Address variants. It is always the
// leading byte of an address's canonical encoding, so Treasury and
// PublicKey addresses can never collide on the wire or in KV keys.
type AddressKind byte

const (
	// AddressTreasury is the singleton treasury account. It holds the
	// unminted supply: genesis allocations and block rewards are paid out
	// of it, and transaction fees are credited back to it.
	AddressTreasury AddressKind = 0
	// AddressPublicKey identifies an account controlled by a keypair.
	AddressPublicKey AddressKind = 1
)

func (k AddressKind) String() string {
	switch k {
	case AddressTreasury:
		return "treasury"
	case AddressPublicKey:
		return "public-key"
	default:
		return fmt.Sprintf("unknown(%d)", byte(k))
	}
}

// treasuryLiteral is the canonical textual rendering of the treasury address.
// It deliberately cannot collide with a bech32 string (no "1" separator).
const treasuryLiteral = "treasury"

// Address HRP (human-readable part) constants for bech32 encoding of
// public-key addresses.
const (
	MainnetHRP = "kgx"
	TestnetHRP = "tkgx"
)

// activeHRP is the address HRP used by String() and MarshalJSON().
// Set once at startup via SetAddressHRP(). Default is mainnet.
var activeHRP = MainnetHRP

// SetAddressHRP sets the active address HRP (call once at startup).
func SetAddressHRP(hrp string) {
	activeHRP = hrp
}

// GetAddressHRP returns the currently active address HRP.
func GetAddressHRP() string {
	return activeHRP
}

// Address is the tagged union of account identifiers: the singleton
// Treasury account, or an account keyed by a public key. The zero value
// (Kind == AddressTreasury, PubKey all zero) is the Treasury address.
type Address struct {
	Kind   AddressKind
	PubKey [PubKeySize]byte
}

// Treasury returns the singleton treasury address.
func Treasury() Address {
	return Address{Kind: AddressTreasury}
}

// NewPublicKeyAddress builds an Address from a compressed secp256k1 public key.
func NewPublicKeyAddress(pubKey [PubKeySize]byte) Address {
	return Address{Kind: AddressPublicKey, PubKey: pubKey}
}

// IsTreasury reports whether a is the treasury address.
func (a Address) IsTreasury() bool {
	return a.Kind == AddressTreasury
}

// IsZero reports whether a is the zero value (equivalent to Treasury()).
func (a Address) IsZero() bool {
	return a == Address{}
}

// canonicalBytes returns the tag-prefixed encoding used for hashing, KV
// keys, and wire transport: 1 byte for Treasury, 1+PubKeySize for PublicKey.
func (a Address) canonicalBytes() []byte {
	w := codec.NewWriter()
	w.WriteTag(byte(a.Kind))
	if a.Kind == AddressPublicKey {
		w.WriteFixed(a.PubKey[:])
	}
	return w.Bytes()
}

// Bytes returns a copy of the address's canonical tagged encoding.
func (a Address) Bytes() []byte {
	return a.canonicalBytes()
}

// Hex returns the hex encoding of the canonical tagged bytes.
func (a Address) Hex() string {
	return hex.EncodeToString(a.canonicalBytes())
}

// String renders the address for display and as the canonical string used
// in KV keys: "treasury" for the treasury account, bech32 for public-key
// accounts.
func (a Address) String() string {
	if a.Kind == AddressTreasury {
		return treasuryLiteral
	}
	s, err := Bech32Encode(activeHRP, a.canonicalBytes())
	if err != nil {
		return activeHRP + ":" + a.Hex()
	}
	return s
}

// MarshalJSON encodes the address as its canonical string form.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes the canonical string form, bech32, or raw hex into an address.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*a = Address{}
		return nil
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress parses the canonical literal "treasury", a bech32-encoded
// public-key address, or raw hex of the tagged encoding.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return Address{}, fmt.Errorf("empty address")
	}
	if s == treasuryLiteral {
		return Treasury(), nil
	}

	var raw []byte
	if strings.Contains(s, "1") && !isHexTagged(s) {
		_, data, err := Bech32Decode(s)
		if err != nil {
			return Address{}, fmt.Errorf("invalid bech32 address: %w", err)
		}
		raw = data
	} else {
		decoded, err := hex.DecodeString(s)
		if err != nil {
			return Address{}, fmt.Errorf("invalid address: %w", err)
		}
		raw = decoded
	}

	return addressFromCanonicalBytes(raw)
}

func addressFromCanonicalBytes(raw []byte) (Address, error) {
	if len(raw) == 0 {
		return Address{}, fmt.Errorf("empty address bytes")
	}
	switch AddressKind(raw[0]) {
	case AddressTreasury:
		if len(raw) != 1 {
			return Address{}, fmt.Errorf("treasury address must be 1 byte, got %d", len(raw))
		}
		return Treasury(), nil
	case AddressPublicKey:
		if len(raw) != 1+PubKeySize {
			return Address{}, fmt.Errorf("public-key address must be %d bytes, got %d", 1+PubKeySize, len(raw))
		}
		var a Address
		a.Kind = AddressPublicKey
		copy(a.PubKey[:], raw[1:])
		return a, nil
	default:
		return Address{}, fmt.Errorf("unknown address tag %d", raw[0])
	}
}

// isHexTagged reports whether s looks like the raw hex tagged encoding
// rather than a bech32 string (exact length, hex alphabet only).
func isHexTagged(s string) bool {
	if len(s) != 2 && len(s) != (1+PubKeySize)*2 {
		return false
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
