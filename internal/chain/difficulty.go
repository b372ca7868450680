package chain

import (
	"sort"

	"github.com/klingnet-chain/zkchain/pkg/block"
	"github.com/klingnet-chain/zkchain/pkg/crypto"
	"github.com/klingnet-chain/zkchain/pkg/types"
)

// medianTimestamp returns the median of the trailing
// Params.MedianTimestampCount header timestamps ending at index,
// clamped to the headers that actually exist (height 0 always
// contributes just itself).
func (c *Chain) medianTimestamp(r reader, index uint64) (uint64, error) {
	count := c.genesis.Params.MedianTimestampCount
	if count == 0 || count > index+1 {
		count = index + 1
	}
	timestamps := make([]uint64, 0, count)
	for i := uint64(0); i < count; i++ {
		h, err := c.getHeader(r, index-i)
		if err != nil {
			return 0, err
		}
		timestamps = append(timestamps, h.Pow.Timestamp)
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })
	return timestamps[len(timestamps)/2], nil
}

// retargetScale returns the numerator/denominator pair scale_difficulty
// should apply, clamped to [1/2, 2/1]: the new target is scaled by
// avg/BLOCK_TIME, so blocks arriving faster than BLOCK_TIME shrink the
// target (harder) and blocks arriving slower grow it (easier), never by
// more than a factor of two in either direction in a single retarget.
func retargetScale(blockTime, avg uint64) (numerator, denominator uint64) {
	if avg == 0 {
		avg = 1
	}
	if blockTime >= 2*avg {
		return 1, 2
	}
	if avg >= 2*blockTime {
		return 2, 1
	}
	return avg, blockTime
}

// computeRetarget derives the new target at a difficulty-boundary block
// from the most recent header and the anchor header interval blocks
// behind it.
func (c *Chain) computeRetarget(last, anchor *block.Header) types.Hash {
	interval := c.genesis.Params.DifficultyCalcInterval
	timeDelta := last.Pow.Timestamp - anchor.Pow.Timestamp
	avg := timeDelta / (interval - 1)
	num, den := retargetScale(c.genesis.Params.BlockTime, avg)
	return crypto.ScaleDifficulty(last.Pow.Target, num, den)
}

// nextDifficulty returns the target a new header at the current height
// must carry: a freshly computed retarget at an interval boundary, or
// the tip's own target otherwise.
func (c *Chain) nextDifficulty(r reader) (types.Hash, error) {
	height, err := c.getHeight(r)
	if err != nil {
		return types.Hash{}, err
	}
	last, err := c.getHeader(r, height-1)
	if err != nil {
		return types.Hash{}, err
	}
	interval := c.genesis.Params.DifficultyCalcInterval
	if height%interval != 0 {
		return last.Pow.Target, nil
	}
	anchor, err := c.getHeader(r, height-interval)
	if err != nil {
		return types.Hash{}, err
	}
	return c.computeRetarget(last, anchor), nil
}

// NextDifficulty returns the PoW target a block built on the current tip
// must meet.
func (c *Chain) NextDifficulty() (types.Hash, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nextDifficulty(c.store)
}
