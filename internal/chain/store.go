package chain

import (
	"github.com/klingnet-chain/zkchain/pkg/block"
)

func (c *Chain) getHeight(r reader) (uint64, error) {
	var h uint64
	ok, err := getJSON(r, heightKey(), &h)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return h, nil
}

// GetHeight returns the number of blocks persisted, i.e. one past the
// current tip's number.
func (c *Chain) GetHeight() (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.getHeight(c.store)
}

func (c *Chain) getHeader(r reader, index uint64) (*block.Header, error) {
	height, err := c.getHeight(r)
	if err != nil {
		return nil, err
	}
	if index >= height {
		return nil, ErrBlockNotFound
	}
	var h block.Header
	ok, err := getJSON(r, headerKey(index), &h)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInconsistency
	}
	return &h, nil
}

// GetHeader returns the header at index.
func (c *Chain) GetHeader(index uint64) (*block.Header, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.getHeader(c.store, index)
}

func (c *Chain) getBlock(r reader, index uint64) (*block.Block, error) {
	height, err := c.getHeight(r)
	if err != nil {
		return nil, err
	}
	if index >= height {
		return nil, ErrBlockNotFound
	}
	var b block.Block
	ok, err := getJSON(r, blockKey(index), &b)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInconsistency
	}
	return &b, nil
}

// GetTip returns the header at the current chain height minus one.
func (c *Chain) GetTip() (*block.Header, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	height, err := c.getHeight(c.store)
	if err != nil {
		return nil, err
	}
	if height == 0 {
		return nil, ErrBlockNotFound
	}
	return c.getHeader(c.store, height-1)
}

func (c *Chain) getPower(r reader) (Power, error) {
	height, err := c.getHeight(r)
	if err != nil {
		return Power{}, err
	}
	if height == 0 {
		return Power{}, nil
	}
	var p Power
	ok, err := getJSON(r, powerKey(height-1), &p)
	if err != nil {
		return Power{}, err
	}
	if !ok {
		return Power{}, ErrInconsistency
	}
	return p, nil
}

// GetPower returns the cumulative proof-of-work accumulated through the
// current tip.
func (c *Chain) GetPower() (Power, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.getPower(c.store)
}

// GetHeaders returns headers in [since, until), clamped to the current
// height. until == nil means "up to the tip".
func (c *Chain) GetHeaders(since uint64, until *uint64) ([]*block.Header, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	height, err := c.getHeight(c.store)
	if err != nil {
		return nil, err
	}
	end := height
	if until != nil && *until < end {
		end = *until
	}
	out := make([]*block.Header, 0, int(end-since))
	for i := since; i < end; i++ {
		h, err := c.getHeader(c.store, i)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

// GetBlocks returns blocks in [since, until), clamped to the current
// height. until == nil means "up to the tip".
func (c *Chain) GetBlocks(since uint64, until *uint64) ([]*block.Block, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	height, err := c.getHeight(c.store)
	if err != nil {
		return nil, err
	}
	end := height
	if until != nil && *until < end {
		end = *until
	}
	out := make([]*block.Block, 0, int(end-since))
	for i := since; i < end; i++ {
		b, err := c.getBlock(c.store, i)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (c *Chain) getOutdatedStates(r reader) (map[string]outdatedEntry, error) {
	out := map[string]outdatedEntry{}
	_, err := getJSON(r, outdatedKey(), &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}
