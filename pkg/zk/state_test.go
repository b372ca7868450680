package zk

import "testing"

func TestState_Compress_Deterministic(t *testing.T) {
	s := NewState()
	s.Data["a"] = []byte("1")
	s.Data["b"] = []byte("2")

	model := StateModel{TreeDepth: 8}
	c1 := s.Compress(model)
	c2 := s.Compress(model)
	if c1 != c2 {
		t.Errorf("Compress is not deterministic: %+v != %+v", c1, c2)
	}
	if c1.Size != 2 {
		t.Errorf("Size = %d, want 2", c1.Size)
	}
}

func TestState_Compress_KeyOrderIndependent(t *testing.T) {
	model := StateModel{}

	a := NewState()
	a.Data["x"] = []byte("1")
	a.Data["y"] = []byte("2")

	b := NewState()
	b.Data["y"] = []byte("2")
	b.Data["x"] = []byte("1")

	if a.Compress(model) != b.Compress(model) {
		t.Error("Compress should not depend on map iteration order")
	}
}

func TestState_PushDelta_Rollback(t *testing.T) {
	model := StateModel{}
	s := NewState()
	before := s.Compress(model)

	delta := StateDelta{Changes: []KeyChange{
		{Key: "balance", PrevValue: nil, NextValue: []byte{42}},
	}}
	s.PushDelta(delta, 8)

	if s.Height != 1 {
		t.Fatalf("Height = %d, want 1", s.Height)
	}
	if string(s.Data["balance"]) != string([]byte{42}) {
		t.Fatalf("balance not applied")
	}

	if !s.Rollback() {
		t.Fatal("Rollback should succeed")
	}
	if s.Height != 0 {
		t.Errorf("Height after rollback = %d, want 0", s.Height)
	}
	after := s.Compress(model)
	if before != after {
		t.Errorf("state after rollback should equal state before push: %+v != %+v", after, before)
	}
}

func TestState_Rollback_EmptyFails(t *testing.T) {
	s := NewState()
	if s.Rollback() {
		t.Error("Rollback on a fresh state should fail")
	}
}

func TestState_Rollback_WindowExpired(t *testing.T) {
	s := NewState()
	delta := StateDelta{Changes: []KeyChange{{Key: "k", NextValue: []byte{1}}}}
	s.PushDelta(delta, 0) // keep=0: no history retained
	if s.Rollback() {
		t.Error("Rollback should fail once history has been evicted")
	}
	if s.Height != 1 {
		t.Errorf("Height should remain 1 after a failed rollback attempt, got %d", s.Height)
	}
}

func TestState_DeltaOf(t *testing.T) {
	s := NewState()
	s.PushDelta(StateDelta{Changes: []KeyChange{{Key: "k", NextValue: []byte{1}}}}, 8)
	s.PushDelta(StateDelta{Changes: []KeyChange{{Key: "k", PrevValue: []byte{1}, NextValue: []byte{2}}}}, 8)

	delta, ok := s.DeltaOf(2)
	if !ok {
		t.Fatal("DeltaOf(2) should succeed within the retained window")
	}
	if len(delta.Changes) != 1 || string(delta.Changes[0].NextValue) != string([]byte{2}) {
		t.Errorf("merged delta = %+v, want single change to {2}", delta.Changes)
	}
	if delta.Changes[0].PrevValue != nil {
		t.Errorf("merged delta PrevValue = %v, want nil (key absent before)", delta.Changes[0].PrevValue)
	}

	if _, ok := s.DeltaOf(3); ok {
		t.Error("DeltaOf(3) should fail: only 2 deltas are retained")
	}
}

func TestState_CompressPrevStates(t *testing.T) {
	model := StateModel{}
	s := NewState()
	c0 := s.Compress(model)
	s.PushDelta(StateDelta{Changes: []KeyChange{{Key: "k", NextValue: []byte{1}}}}, 8)
	c1 := s.Compress(model)
	s.PushDelta(StateDelta{Changes: []KeyChange{{Key: "k", PrevValue: []byte{1}, NextValue: []byte{2}}}}, 8)

	prevs := s.CompressPrevStates(model, 8)
	if len(prevs) != 2 {
		t.Fatalf("len(prevs) = %d, want 2", len(prevs))
	}
	if prevs[0] != c1 {
		t.Errorf("prevs[0] = %+v, want state at height 1 (%+v)", prevs[0], c1)
	}
	if prevs[1] != c0 {
		t.Errorf("prevs[1] = %+v, want state at height 0 (%+v)", prevs[1], c0)
	}

	// s itself must be unmutated by CompressPrevStates.
	if s.Height != 2 {
		t.Errorf("CompressPrevStates mutated s: Height = %d, want 2", s.Height)
	}
}

func TestState_Clone_Independent(t *testing.T) {
	s := NewState()
	s.Data["k"] = []byte{1}
	clone := s.Clone()
	clone.Data["k"][0] = 0xff
	if s.Data["k"][0] == 0xff {
		t.Error("Clone should deep-copy values")
	}
}
