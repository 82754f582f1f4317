package generator

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/weiawesome/wes-io-live/sequence-service/internal/incrementer"
)

const (
	KindSequence = incrementer.KindSequence
	KindHiLo     = incrementer.KindHiLo
	KindProcess  = "process"
	KindULID     = "ulid"
	KindKSUID    = "ksuid"
)

var ErrUnknownKind = errors.New("unknown id kind")

// Generator defines the interface for ID generation, validation, and parsing.
type Generator interface {
	Generate(ctx context.Context) (string, error)
	GenerateBatch(ctx context.Context, count int) ([]string, error)
	Validate(id string) (bool, string) // (valid, reason)
	Parse(id string) (*ParseResult, error)
}

// ParseResult holds the parsed fields from an ID. Only the fields relevant to
// the kind are set.
type ParseResult struct {
	Value         uint64 `json:"value,omitempty"`          // sequence/hilo value, ULID/KSUID sequence number
	Hi            uint64 `json:"hi,omitempty"`             // hilo only
	Lo            uint64 `json:"lo,omitempty"`             // hilo only
	Host          string `json:"host,omitempty"`           // process only
	ProcessStart  uint32 `json:"process_start,omitempty"`  // process only, start ms >> 8
	Counter       uint16 `json:"counter,omitempty"`        // process only
	TimestampMs   int64  `json:"timestamp_ms,omitempty"`   // process/ULID/KSUID: absolute unix ms
	RandomPayload string `json:"random_payload,omitempty"` // ULID/KSUID: hex-encoded random tail
	IDLength      int32  `json:"id_length,omitempty"`
}

// Registry maps a kind name to its generator.
type Registry struct {
	generators map[string]Generator
}

func NewRegistry() *Registry {
	return &Registry{generators: make(map[string]Generator)}
}

// Register adds or replaces the generator for kind.
func (r *Registry) Register(kind string, g Generator) {
	r.generators[kind] = g
}

func (r *Registry) Get(kind string) (Generator, error) {
	g, ok := r.generators[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return g, nil
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.generators))
	for k := range r.generators {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

func generateBatch(ctx context.Context, count int, generate func(context.Context) (string, error)) ([]string, error) {
	if count < 1 {
		return nil, fmt.Errorf("count must be positive, got %d", count)
	}
	ids := make([]string, 0, count)
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id, err := generate(ctx)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
