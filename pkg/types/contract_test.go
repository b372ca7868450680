package types

import "testing"

func TestContractID_IsZero(t *testing.T) {
	var zero ContractID
	if !zero.IsZero() {
		t.Error("zero-value ContractID should be zero")
	}

	nonZero := ContractID{0x01}
	if nonZero.IsZero() {
		t.Error("non-zero ContractID should not be zero")
	}
}

func TestHexToContractID(t *testing.T) {
	h := "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262"
	cid, err := HexToContractID(h)
	if err != nil {
		t.Fatalf("HexToContractID: %v", err)
	}
	if cid.String() != h {
		t.Errorf("roundtrip: got %s, want %s", cid.String(), h)
	}
}
