package generator

import (
	"context"
	"fmt"
	"strconv"

	"github.com/weiawesome/wes-io-live/sequence-service/internal/incrementer"
)

// BlockGenerator renders identifiers from a block-allocating Incrementer.
type BlockGenerator struct {
	inc *incrementer.Incrementer
}

// NewBlockGenerator wraps an initialized Incrementer.
func NewBlockGenerator(inc *incrementer.Incrementer) *BlockGenerator {
	return &BlockGenerator{inc: inc}
}

func (g *BlockGenerator) Generate(ctx context.Context) (string, error) {
	return g.inc.NextStringValue(ctx)
}

func (g *BlockGenerator) GenerateBatch(ctx context.Context, count int) ([]string, error) {
	values, err := g.inc.NextBatch(ctx, count)
	if err != nil {
		return nil, err
	}
	padding := g.inc.Options().PaddingLength
	ids := make([]string, len(values))
	for i, v := range values {
		ids[i] = incrementer.Format(v, padding)
	}
	return ids, nil
}

// Current returns the last identifier issued by this process.
func (g *BlockGenerator) Current() uint64 {
	return g.inc.CurrentValue()
}

// Validate accepts identifiers in canonical form that this process could
// have issued already.
func (g *BlockGenerator) Validate(id string) (bool, string) {
	_, reason := g.value(id)
	return reason == "", reason
}

func (g *BlockGenerator) Parse(id string) (*ParseResult, error) {
	v, reason := g.value(id)
	if reason != "" {
		return nil, fmt.Errorf("invalid %s id: %s", g.inc.Kind(), reason)
	}

	result := &ParseResult{
		Value:    v,
		IDLength: int32(len(id)),
	}
	if g.inc.Kind() == KindHiLo {
		result.Hi, result.Lo = incrementer.DecomposeHiLo(v, g.inc.Options().BlockSize)
	}
	return result, nil
}

func (g *BlockGenerator) value(id string) (uint64, string) {
	if id == "" {
		return 0, "empty id"
	}
	for _, c := range id {
		if c < '0' || c > '9' {
			return 0, fmt.Sprintf("character '%c' is not a decimal digit", c)
		}
	}
	v, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return 0, "value out of range"
	}
	if v == 0 {
		return 0, "zero is never issued"
	}
	if want := incrementer.Format(v, g.inc.Options().PaddingLength); want != id {
		return 0, fmt.Sprintf("expected canonical form %s", want)
	}
	if current := g.inc.CurrentValue(); v > current {
		return 0, fmt.Sprintf("value %d has not been issued yet (current %d)", v, current)
	}
	return v, ""
}
