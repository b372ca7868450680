package zk

// KeyChange records the before/after value of one state key within a
// delta. A nil PrevValue means the key did not exist before the delta; a
// nil NextValue means the delta deleted the key.
type KeyChange struct {
	Key       string `json:"key"`
	PrevValue []byte `json:"prev_value,omitempty"`
	NextValue []byte `json:"next_value,omitempty"`
}

// StateDelta is the set of key changes that advance a contract's state by
// exactly one height. It carries enough information to apply the change
// forward (NextValue) or undo it (PrevValue), so a single representation
// serves both PushDelta and Rollback.
type StateDelta struct {
	Changes []KeyChange `json:"changes"`
}

// Size returns the byte length of the delta's changed keys and values,
// used to weigh a transaction's ZK state delta against MaxDeltaSize
// alongside its transaction body size.
func (d StateDelta) Size() int {
	n := 0
	for _, c := range d.Changes {
		n += len(c.Key) + len(c.PrevValue) + len(c.NextValue)
	}
	return n
}

// PushDelta applies delta to s, advancing its height by one. keep bounds
// how many trailing deltas are retained in history; older deltas are
// discarded once the window fills, which is what later makes some
// DeltaOf/CompressPrevStates calls fail for states that fell far behind.
func (s *State) PushDelta(delta StateDelta, keep int) {
	for _, c := range delta.Changes {
		if c.NextValue == nil {
			delete(s.Data, c.Key)
			continue
		}
		s.Data[c.Key] = append([]byte(nil), c.NextValue...)
	}
	s.History = append(s.History, delta)
	if keep >= 0 && len(s.History) > keep {
		s.History = s.History[len(s.History)-keep:]
	}
	s.Height++
}

// Rollback undoes the most recently applied delta, decreasing height by
// one. It fails if there is no history to undo from (height is 0, or the
// most recent delta already fell outside the retained window).
func (s *State) Rollback() bool {
	if s.Height == 0 || len(s.History) == 0 {
		return false
	}
	last := s.History[len(s.History)-1]
	for _, c := range last.Changes {
		if c.PrevValue == nil {
			delete(s.Data, c.Key)
			continue
		}
		s.Data[c.Key] = append([]byte(nil), c.PrevValue...)
	}
	s.History = s.History[:len(s.History)-1]
	s.Height--
	return true
}

// DeltaOf composes a single delta describing the transition from height
// (s.Height - steps) to s.Height. It fails (ok=false) when steps exceeds
// the retained history window — the caller must fall back to a full
// state patch instead.
func (s *State) DeltaOf(steps uint64) (delta StateDelta, ok bool) {
	if steps == 0 {
		return StateDelta{}, true
	}
	if steps > uint64(len(s.History)) {
		return StateDelta{}, false
	}

	merged := map[string]*KeyChange{}
	order := make([]string, 0, steps)
	start := len(s.History) - int(steps)
	for _, d := range s.History[start:] {
		for _, c := range d.Changes {
			if existing, found := merged[c.Key]; found {
				existing.NextValue = c.NextValue
				continue
			}
			cp := c
			merged[c.Key] = &cp
			order = append(order, c.Key)
		}
	}

	out := make([]KeyChange, 0, len(order))
	for _, k := range order {
		out = append(out, *merged[k])
	}
	return StateDelta{Changes: out}, true
}

// CompressPrevStates returns the compressed states at heights
// s.Height-1, s.Height-2, ... back through the retained history window
// (at most keep entries, fewer if history is shorter). It never mutates
// s; the rollbacks are performed on a scratch clone.
func (s *State) CompressPrevStates(model StateModel, keep int) []CompressedState {
	scratch := s.Clone()
	out := make([]CompressedState, 0, keep)
	for i := 0; i < keep; i++ {
		if !scratch.Rollback() {
			break
		}
		out = append(out, scratch.Compress(model))
	}
	return out
}
