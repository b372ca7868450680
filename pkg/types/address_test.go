package types

import (
	"encoding/json"
	"strings"
	"testing"
)

func samplePubKey(fill byte) [PubKeySize]byte {
	var pk [PubKeySize]byte
	pk[0] = 0x02 // compressed-key parity byte
	for i := 1; i < PubKeySize; i++ {
		pk[i] = fill
	}
	return pk
}

func TestAddress_IsZero(t *testing.T) {
	var zero Address
	if !zero.IsZero() {
		t.Error("zero-value Address should be zero")
	}
	if !zero.IsTreasury() {
		t.Error("zero-value Address should be the treasury address")
	}

	pk := NewPublicKeyAddress(samplePubKey(0x01))
	if pk.IsZero() {
		t.Error("public-key Address should not be zero")
	}
	if pk.IsTreasury() {
		t.Error("public-key Address should not be treasury")
	}
}

func TestAddress_Treasury_String(t *testing.T) {
	tr := Treasury()
	if tr.String() != "treasury" {
		t.Errorf("Treasury().String() = %q, want %q", tr.String(), "treasury")
	}
}

func TestAddress_String(t *testing.T) {
	oldHRP := activeHRP
	defer func() { activeHRP = oldHRP }()

	SetAddressHRP(MainnetHRP)

	a := NewPublicKeyAddress(samplePubKey(0xab))
	s := a.String()
	if !strings.HasPrefix(s, "kgx1") {
		t.Errorf("String() should start with 'kgx1', got %s", s)
	}
}

func TestAddress_String_Testnet(t *testing.T) {
	oldHRP := activeHRP
	defer func() { activeHRP = oldHRP }()

	SetAddressHRP(TestnetHRP)

	a := NewPublicKeyAddress(samplePubKey(0x01))
	s := a.String()
	if !strings.HasPrefix(s, "tkgx1") {
		t.Errorf("String() should start with 'tkgx1', got %s", s)
	}
}

func TestAddress_Bech32_Roundtrip(t *testing.T) {
	oldHRP := activeHRP
	defer func() { activeHRP = oldHRP }()

	SetAddressHRP(MainnetHRP)

	a := NewPublicKeyAddress(samplePubKey(0x8f))

	s := a.String()
	parsed, err := ParseAddress(s)
	if err != nil {
		t.Fatalf("ParseAddress(%q): %v", s, err)
	}
	if parsed != a {
		t.Errorf("roundtrip mismatch: got %x, want %x", parsed.PubKey, a.PubKey)
	}
}

func TestAddress_Treasury_Roundtrip(t *testing.T) {
	tr := Treasury()
	parsed, err := ParseAddress(tr.String())
	if err != nil {
		t.Fatalf("ParseAddress(treasury): %v", err)
	}
	if parsed != tr {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", parsed, tr)
	}
}

func TestAddress_Hex(t *testing.T) {
	a := NewPublicKeyAddress(samplePubKey(0xcd))
	h := a.Hex()
	// tag byte (01) + 33-byte pubkey, hex-encoded.
	if len(h) != 2*(1+PubKeySize) {
		t.Errorf("Hex() length = %d, want %d", len(h), 2*(1+PubKeySize))
	}
	if !strings.HasPrefix(h, "01") {
		t.Errorf("Hex() should start with tag '01', got %s", h[:2])
	}

	tr := Treasury()
	if tr.Hex() != "00" {
		t.Errorf("Treasury().Hex() = %s, want %q", tr.Hex(), "00")
	}
}

func TestAddress_Bytes(t *testing.T) {
	a := NewPublicKeyAddress(samplePubKey(0x03))
	b := a.Bytes()

	if len(b) != 1+PubKeySize {
		t.Errorf("Bytes() length = %d, want %d", len(b), 1+PubKeySize)
	}
	if b[0] != byte(AddressPublicKey) {
		t.Errorf("Bytes() tag = %d, want %d", b[0], AddressPublicKey)
	}

	// Ensure it's a copy.
	b[1] = 0xFF
	if a.PubKey[0] == 0xFF {
		t.Error("Bytes() should return a copy, not a reference")
	}
}

func TestParseAddress(t *testing.T) {
	oldHRP := activeHRP
	defer func() { activeHRP = oldHRP }()

	SetAddressHRP(MainnetHRP)

	a := NewPublicKeyAddress(samplePubKey(0x42))
	bech32Addr := a.String()
	rawHex := a.Hex()

	SetAddressHRP(TestnetHRP)
	testnetBech32 := a.String()
	SetAddressHRP(MainnetHRP)

	tests := []struct {
		name    string
		input   string
		want    Address
		wantErr bool
	}{
		{"raw tagged hex", rawHex, a, false},
		{"bech32 mainnet", bech32Addr, a, false},
		{"bech32 testnet", testnetBech32, a, false},
		{"treasury literal", "treasury", Treasury(), false},
		{"invalid bech32", "kgx1invalid!!!", Address{}, true},
		{"wrong length hex", "01abcd", Address{}, true},
		{"empty", "", Address{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAddress(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseAddress(%q) should have returned error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAddress(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseAddress(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestAddress_JSON_RoundTrip(t *testing.T) {
	oldHRP := activeHRP
	defer func() { activeHRP = oldHRP }()

	SetAddressHRP(MainnetHRP)

	original := NewPublicKeyAddress(samplePubKey(0xef))

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	if !strings.Contains(string(data), "kgx1") {
		t.Errorf("JSON should contain bech32 format, got %s", string(data))
	}

	var decoded Address
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if original != decoded {
		t.Errorf("roundtrip mismatch: original=%x, decoded=%x", original.PubKey, decoded.PubKey)
	}
}

func TestAddress_JSON_Treasury(t *testing.T) {
	data, err := json.Marshal(Treasury())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `"treasury"` {
		t.Errorf("Marshal(Treasury()) = %s, want %q", data, `"treasury"`)
	}

	var decoded Address
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !decoded.IsTreasury() {
		t.Error("decoded address should be treasury")
	}
}

func TestSetAddressHRP(t *testing.T) {
	oldHRP := activeHRP
	defer func() { activeHRP = oldHRP }()

	SetAddressHRP(TestnetHRP)
	if GetAddressHRP() != TestnetHRP {
		t.Errorf("GetAddressHRP() = %s, want %s", GetAddressHRP(), TestnetHRP)
	}

	SetAddressHRP(MainnetHRP)
	if GetAddressHRP() != MainnetHRP {
		t.Errorf("GetAddressHRP() = %s, want %s", GetAddressHRP(), MainnetHRP)
	}
}
