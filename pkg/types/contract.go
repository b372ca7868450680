package types

// ContractID identifies a deployed ZK contract. It is derived from the
// hash of the transaction that created the contract, so it is stable
// across nodes without any separate allocation step.
type ContractID Hash

// IsZero returns true if the contract ID is all zeros.
func (c ContractID) IsZero() bool {
	return Hash(c).IsZero()
}

// String returns the hex-encoded contract ID.
func (c ContractID) String() string {
	return Hash(c).String()
}

// Bytes returns a copy of the contract ID as a byte slice.
func (c ContractID) Bytes() []byte {
	return Hash(c).Bytes()
}

// MarshalJSON encodes the contract ID as a hex string.
func (c ContractID) MarshalJSON() ([]byte, error) {
	return Hash(c).MarshalJSON()
}

// UnmarshalJSON decodes a hex string into a contract ID.
func (c *ContractID) UnmarshalJSON(data []byte) error {
	return (*Hash)(c).UnmarshalJSON(data)
}

// HexToContractID converts a hex string to a ContractID.
func HexToContractID(s string) (ContractID, error) {
	h, err := HexToHash(s)
	return ContractID(h), err
}
