package kv

// Overlay is a RAM mirror over a read-only base Store: reads consult the
// overlay's own buffered writes first and fall through to base only on a
// miss, while writes accumulate in memory until ToOps is taken and
// committed to base. This lets the chain probe a whole block's worth of
// transactions — or a reorg's worth of blocks — against a consistent
// snapshot and throw the attempt away on any failure, never touching base
// until the attempt fully succeeds.
type Overlay struct {
	base      Store
	overrides map[string][]byte
	removed   map[string]bool
}

// NewOverlay wraps base in a fresh overlay with no buffered writes.
func NewOverlay(base Store) *Overlay {
	return &Overlay{
		base:      base,
		overrides: make(map[string][]byte),
		removed:   make(map[string]bool),
	}
}

// Get returns the overlay's own pending value for key if one exists,
// otherwise falls through to base.
func (o *Overlay) Get(key string) ([]byte, bool, error) {
	if o.removed[key] {
		return nil, false, nil
	}
	if v, ok := o.overrides[key]; ok {
		out := make([]byte, len(v))
		copy(out, v)
		return out, true, nil
	}
	return o.base.Get(key)
}

// Put buffers a write; it is not visible to base until Commit.
func (o *Overlay) Put(key string, value []byte) {
	v := make([]byte, len(value))
	copy(v, value)
	o.overrides[key] = v
	delete(o.removed, key)
}

// Remove buffers a delete.
func (o *Overlay) Remove(key string) {
	delete(o.overrides, key)
	o.removed[key] = true
}

// Apply buffers a batch of WriteOps in order.
func (o *Overlay) Apply(ops []WriteOp) {
	for _, op := range ops {
		switch op.Kind {
		case OpPut:
			o.Put(op.Key, op.Value)
		case OpRemove:
			o.Remove(op.Key)
		}
	}
}

// ToOps returns the overlay's buffered writes as a batch, in no particular
// order; callers that need deterministic ordering (for hashing a rollback
// log, say) must sort the result themselves.
func (o *Overlay) ToOps() []WriteOp {
	ops := make([]WriteOp, 0, len(o.overrides)+len(o.removed))
	for k, v := range o.overrides {
		ops = append(ops, Put(k, v))
	}
	for k := range o.removed {
		if _, ok := o.overrides[k]; ok {
			continue
		}
		ops = append(ops, Remove(k))
	}
	return ops
}

// Reset discards all buffered writes, returning the overlay to a clean
// mirror of base. Used when a speculative batch (a candidate block, a
// reorg attempt) fails partway through.
func (o *Overlay) Reset() {
	o.overrides = make(map[string][]byte)
	o.removed = make(map[string]bool)
}

// Commit writes the overlay's buffered ops to base atomically and clears
// the overlay's buffer on success.
func (o *Overlay) Commit() error {
	ops := o.ToOps()
	if err := o.base.Update(ops); err != nil {
		return err
	}
	o.Reset()
	return nil
}
