package codec

import "testing"

func TestWriter_Reader_Roundtrip(t *testing.T) {
	w := NewWriter()
	w.WriteTag(7)
	w.WriteU8(42)
	w.WriteU32(1234)
	w.WriteU64(9876543210)
	w.WriteFixed([]byte{0xde, 0xad, 0xbe, 0xef})
	w.WriteVarBytes([]byte("hello"))
	w.WriteVarSeq(2)
	w.WriteU64(1)
	w.WriteU64(2)

	r := NewReader(w.Bytes())

	tag, err := r.ReadTag()
	if err != nil || tag != 7 {
		t.Fatalf("ReadTag() = %d, %v; want 7, nil", tag, err)
	}
	u8, err := r.ReadU8()
	if err != nil || u8 != 42 {
		t.Fatalf("ReadU8() = %d, %v; want 42, nil", u8, err)
	}
	u32, err := r.ReadU32()
	if err != nil || u32 != 1234 {
		t.Fatalf("ReadU32() = %d, %v; want 1234, nil", u32, err)
	}
	u64, err := r.ReadU64()
	if err != nil || u64 != 9876543210 {
		t.Fatalf("ReadU64() = %d, %v; want 9876543210, nil", u64, err)
	}
	fixed, err := r.ReadFixed(4)
	if err != nil || string(fixed) != "\xde\xad\xbe\xef" {
		t.Fatalf("ReadFixed(4) = %x, %v", fixed, err)
	}
	varb, err := r.ReadVarBytes()
	if err != nil || string(varb) != "hello" {
		t.Fatalf("ReadVarBytes() = %q, %v", varb, err)
	}
	n, err := r.ReadVarSeq()
	if err != nil || n != 2 {
		t.Fatalf("ReadVarSeq() = %d, %v; want 2, nil", n, err)
	}
	for i := 0; i < n; i++ {
		if _, err := r.ReadU64(); err != nil {
			t.Fatalf("element %d: %v", i, err)
		}
	}
	if !r.Done() {
		t.Errorf("expected reader to be fully consumed, %d bytes remaining", r.Remaining())
	}
}

func TestReader_ShortBuffer(t *testing.T) {
	r := NewReader([]byte{0x01})
	if _, err := r.ReadU64(); err != ErrShortBuffer {
		t.Errorf("ReadU64() on short buffer = %v, want ErrShortBuffer", err)
	}
}

func TestReader_VarBytes_TruncatedLength(t *testing.T) {
	w := NewWriter()
	w.WriteU64(100) // claims 100 bytes follow, but none do
	r := NewReader(w.Bytes())
	if _, err := r.ReadVarBytes(); err != ErrShortBuffer {
		t.Errorf("ReadVarBytes() = %v, want ErrShortBuffer", err)
	}
}
