package generator

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/segmentio/ksuid"

	"github.com/weiawesome/wes-io-live/sequence-service/internal/incrementer"
)

const (
	// seqLen is the size of the big-endian sequence number at the head of the
	// payload, so ids sharing a timestamp sort in issuance order.
	seqLen = 8

	ulidRandomLen = 16 - 6 - seqLen
	ulidSeqOffset = 6

	ksuidPayloadLen    = 16
	ksuidRandomLen     = ksuidPayloadLen - seqLen
	ksuidEncodedLength = 27
)

// stamped draws sequence numbers from a block-allocating Incrementer for the
// time-sortable encodings.
type stamped struct {
	inc     *incrementer.Incrementer
	now     func() time.Time
	entropy io.Reader
}

func newStamped(inc *incrementer.Incrementer) stamped {
	return stamped{inc: inc, now: time.Now, entropy: rand.Reader}
}

// draw reads the random tail of every id before any sequence number is taken,
// so a failure never consumes sequence numbers.
func (s *stamped) draw(ctx context.Context, count, randomLen int) ([]uint64, []byte, error) {
	if count < 1 {
		return nil, nil, fmt.Errorf("count must be positive, got %d", count)
	}
	random := make([]byte, count*randomLen)
	if _, err := io.ReadFull(s.entropy, random); err != nil {
		return nil, nil, fmt.Errorf("failed to read entropy: %w", err)
	}
	seqs, err := s.inc.NextBatch(ctx, count)
	if err != nil {
		return nil, nil, err
	}
	return seqs, random, nil
}

func (s *stamped) issued(seq uint64) string {
	if seq == 0 {
		return "sequence number is zero"
	}
	if current := s.inc.CurrentValue(); seq > current {
		return fmt.Sprintf("sequence number %d has not been issued yet (current %d)", seq, current)
	}
	return ""
}

// ULIDGenerator issues ULIDs whose 80-bit entropy is a sequence number
// followed by two random bytes.
type ULIDGenerator struct {
	stamped
}

func NewULIDGenerator(inc *incrementer.Incrementer) *ULIDGenerator {
	return &ULIDGenerator{stamped: newStamped(inc)}
}

func (g *ULIDGenerator) Generate(ctx context.Context) (string, error) {
	ids, err := g.GenerateBatch(ctx, 1)
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

func (g *ULIDGenerator) GenerateBatch(ctx context.Context, count int) ([]string, error) {
	ms := ulid.Timestamp(g.now())
	if ms > ulid.MaxTime() {
		return nil, ulid.ErrBigTime
	}

	seqs, random, err := g.draw(ctx, count, ulidRandomLen)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(seqs))
	for i, seq := range seqs {
		var id ulid.ULID
		_ = id.SetTime(ms)
		binary.BigEndian.PutUint64(id[ulidSeqOffset:], seq)
		copy(id[ulidSeqOffset+seqLen:], random[i*ulidRandomLen:])
		ids[i] = id.String()
	}
	return ids, nil
}

func (g *ULIDGenerator) Validate(id string) (bool, string) {
	_, reason := g.decode(id)
	return reason == "", reason
}

func (g *ULIDGenerator) Parse(id string) (*ParseResult, error) {
	parsed, reason := g.decode(id)
	if reason != "" {
		return nil, fmt.Errorf("invalid ULID: %s", reason)
	}

	return &ParseResult{
		Value:         binary.BigEndian.Uint64(parsed[ulidSeqOffset:]),
		TimestampMs:   int64(parsed.Time()),
		RandomPayload: hex.EncodeToString(parsed[ulidSeqOffset+seqLen:]),
		IDLength:      int32(len(id)),
	}, nil
}

func (g *ULIDGenerator) decode(id string) (ulid.ULID, string) {
	if len(id) != ulid.EncodedSize {
		return ulid.ULID{}, fmt.Sprintf("expected length %d, got %d", ulid.EncodedSize, len(id))
	}
	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		return ulid.ULID{}, fmt.Sprintf("invalid ULID format: %v", err)
	}
	if reason := g.issued(binary.BigEndian.Uint64(parsed[ulidSeqOffset:])); reason != "" {
		return ulid.ULID{}, reason
	}
	return parsed, ""
}

// KSUIDGenerator issues KSUIDs whose 128-bit payload is a sequence number
// followed by eight random bytes. KSUID time has second resolution.
type KSUIDGenerator struct {
	stamped
}

func NewKSUIDGenerator(inc *incrementer.Incrementer) *KSUIDGenerator {
	return &KSUIDGenerator{stamped: newStamped(inc)}
}

func (g *KSUIDGenerator) Generate(ctx context.Context) (string, error) {
	ids, err := g.GenerateBatch(ctx, 1)
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

func (g *KSUIDGenerator) GenerateBatch(ctx context.Context, count int) ([]string, error) {
	seqs, random, err := g.draw(ctx, count, ksuidRandomLen)
	if err != nil {
		return nil, err
	}

	now := g.now()
	ids := make([]string, len(seqs))
	payload := make([]byte, ksuidPayloadLen)
	for i, seq := range seqs {
		binary.BigEndian.PutUint64(payload, seq)
		copy(payload[seqLen:], random[i*ksuidRandomLen:])
		id, err := ksuid.FromParts(now, payload)
		if err != nil {
			return nil, fmt.Errorf("failed to generate KSUID: %w", err)
		}
		ids[i] = id.String()
	}
	return ids, nil
}

func (g *KSUIDGenerator) Validate(id string) (bool, string) {
	_, reason := g.decode(id)
	return reason == "", reason
}

func (g *KSUIDGenerator) Parse(id string) (*ParseResult, error) {
	parsed, reason := g.decode(id)
	if reason != "" {
		return nil, fmt.Errorf("invalid KSUID: %s", reason)
	}

	payload := parsed.Payload()
	return &ParseResult{
		Value:         binary.BigEndian.Uint64(payload),
		TimestampMs:   parsed.Time().UnixMilli(),
		RandomPayload: hex.EncodeToString(payload[seqLen:]),
		IDLength:      int32(len(id)),
	}, nil
}

func (g *KSUIDGenerator) decode(id string) (ksuid.KSUID, string) {
	if len(id) != ksuidEncodedLength {
		return ksuid.Nil, fmt.Sprintf("expected length %d, got %d", ksuidEncodedLength, len(id))
	}
	parsed, err := ksuid.Parse(id)
	if err != nil {
		return ksuid.Nil, fmt.Sprintf("invalid KSUID format: %v", err)
	}
	if reason := g.issued(binary.BigEndian.Uint64(parsed.Payload())); reason != "" {
		return ksuid.Nil, reason
	}
	return parsed, ""
}
