package incrementer

import (
	"context"
	"fmt"
	"math"
	"math/bits"
)

const (
	KindSequence = "sequence"
	KindHiLo     = "hilo"
)

// Reserve advances the backing counter by increment and returns the new upper
// bound. Strategies call it whenever their cached block is used up.
type Reserve func(ctx context.Context, increment uint64) (uint64, error)

// Strategy derives identifiers from reserved blocks. Implementations are not
// safe for concurrent use; the Incrementer serializes every call.
type Strategy interface {
	Name() string
	// Seed reserves the opening block and sets up the cursor.
	Seed(ctx context.Context, reserve Reserve, opts Options) error
	// Next returns the next identifier. On error no identifier was issued and
	// the cursor is unchanged.
	Next(ctx context.Context, reserve Reserve) (uint64, error)
}

// Sequence issues nextID, nextID+delta, ... and reserves another block of
// blockSize once the current block is used up.
type Sequence struct {
	blockSize uint64
	delta     uint64
	nextID    uint64 // next identifier to issue
	maxID     uint64 // inclusive upper bound of the current block
}

func (s *Sequence) Name() string { return KindSequence }

func (s *Sequence) Seed(ctx context.Context, reserve Reserve, opts Options) error {
	bound, err := reserve(ctx, opts.BlockSize)
	if err != nil {
		return err
	}
	if bound < opts.BlockSize {
		return fmt.Errorf("block bound %d below block size %d", bound, opts.BlockSize)
	}

	s.blockSize = opts.BlockSize
	s.delta = opts.Delta
	s.maxID = bound
	s.nextID = bound - opts.BlockSize + opts.Delta
	return nil
}

func (s *Sequence) Next(ctx context.Context, reserve Reserve) (uint64, error) {
	if s.nextID > s.maxID {
		bound, err := reserve(ctx, s.blockSize)
		if err != nil {
			return 0, err
		}
		// A block that does not continue the previous one means the counter
		// moved underneath us; start at the beginning of the new block.
		if start := bound - s.blockSize; start != s.maxID {
			s.nextID = start + s.delta
		}
		s.maxID = bound
	}

	id := s.nextID
	if id > math.MaxUint64-s.delta {
		return 0, ErrIDOverflow
	}
	s.nextID += s.delta
	return id, nil
}

// HiLo issues hi*(maxLo+1)+lo. lo runs from 1 up to maxLo+1; after that hi is
// bumped and a block of size 1 is reserved so the persisted counter keeps
// pace with the hi values consumed.
type HiLo struct {
	hi    uint64
	lo    uint64
	maxLo uint64
}

func (h *HiLo) Name() string { return KindHiLo }

func (h *HiLo) Seed(ctx context.Context, reserve Reserve, opts Options) error {
	hi, err := reserve(ctx, opts.BlockSize)
	if err != nil {
		return err
	}
	h.hi = hi
	h.lo = 1
	h.maxLo = opts.BlockSize
	return nil
}

func (h *HiLo) Next(ctx context.Context, reserve Reserve) (uint64, error) {
	id, err := ComposeHiLo(h.hi, h.lo, h.maxLo)
	if err != nil {
		return 0, err
	}

	if h.lo > h.maxLo {
		if _, err := reserve(ctx, 1); err != nil {
			return 0, err
		}
		h.hi++
		h.lo = 1
	} else {
		h.lo++
	}
	return id, nil
}

// ComposeHiLo returns hi*(maxLo+1)+lo.
func ComposeHiLo(hi, lo, maxLo uint64) (uint64, error) {
	carry, product := bits.Mul64(hi, maxLo+1)
	if carry != 0 {
		return 0, ErrIDOverflow
	}
	sum, carry := bits.Add64(product, lo, 0)
	if carry != 0 {
		return 0, ErrIDOverflow
	}
	return sum, nil
}

// DecomposeHiLo is the inverse of ComposeHiLo for lo in 1..maxLo+1.
func DecomposeHiLo(id, maxLo uint64) (hi, lo uint64) {
	width := maxLo + 1
	hi, lo = id/width, id%width
	if lo == 0 && hi > 0 {
		hi, lo = hi-1, width
	}
	return hi, lo
}
