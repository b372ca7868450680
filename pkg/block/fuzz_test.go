package block

import (
	"encoding/json"
	"testing"
)

// FuzzBlockUnmarshal tests that arbitrary JSON input does not panic
// when unmarshaled into a Block struct.
func FuzzBlockUnmarshal(f *testing.F) {
	f.Add([]byte(`{"header":{"parent_hash":"0000000000000000000000000000000000000000000000000000000000000000","number":0,"block_root":"0000000000000000000000000000000000000000000000000000000000000000","proof_of_work":{"timestamp":1000,"target":"00000000000000000000000000000000000000000000000000000000000000ff","nonce":0}},"body":[]}`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`null`))
	f.Add([]byte(`{"header":null}`))
	f.Add([]byte(`{"header":{"number":99999},"body":[{"src":{},"nonce":1}]}`))

	f.Fuzz(func(t *testing.T, data []byte) {
		var blk Block
		if err := json.Unmarshal(data, &blk); err != nil {
			return // Invalid JSON is expected.
		}
		// If unmarshal succeeded, Validate and Hash must not panic.
		if blk.Header != nil {
			blk.Validate()
			blk.Hash()
		}
	})
}

// FuzzBlockHeaderUnmarshal tests that arbitrary JSON input does not panic
// when unmarshaled into a Header struct.
func FuzzBlockHeaderUnmarshal(f *testing.F) {
	f.Add([]byte(`{"parent_hash":"00","number":0,"block_root":"00","proof_of_work":{"timestamp":1000,"target":"00","nonce":0}}`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`{"number":18446744073709551615}`))

	f.Fuzz(func(t *testing.T, data []byte) {
		var h Header
		if err := json.Unmarshal(data, &h); err != nil {
			return
		}
		h.Hash()
		h.SigningBytes()
		h.BytesWithoutNonce()
	})
}
