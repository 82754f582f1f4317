package generator

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net"
	"sync"
	"time"
)

const (
	processIDLength = 32
	maxCounter      = 1<<15 - 1
)

// ProcessIdentity identifies the running process: the IPv4 address of the
// host and the start time in milliseconds shifted right by 8.
type ProcessIdentity struct {
	Host  uint32
	Start uint32
}

// NewProcessIdentity resolves the host address once. A host without a
// non-loopback IPv4 address gets 0.
func NewProcessIdentity(start time.Time) ProcessIdentity {
	return ProcessIdentity{
		Host:  hostIPv4(),
		Start: uint32(start.UnixMilli() >> 8),
	}
}

func hostIPv4() uint32 {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return 0
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return binary.BigEndian.Uint32(ip4)
		}
	}
	return 0
}

// ProcessGenerator produces 32 hex character identifiers laid out as
// host(8) start(8) hiTime(4) loTime(8) counter(4). The counter runs from 0 to
// 32767 and then starts over.
type ProcessGenerator struct {
	identity ProcessIdentity

	mu      sync.Mutex
	counter uint16
	now     func() time.Time
}

func NewProcessGenerator(identity ProcessIdentity) *ProcessGenerator {
	return &ProcessGenerator{
		identity: identity,
		now:      time.Now,
	}
}

func (g *ProcessGenerator) Identity() ProcessIdentity {
	return g.identity
}

func (g *ProcessGenerator) Generate(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	g.mu.Lock()
	counter := g.counter
	if g.counter == maxCounter {
		g.counter = 0
	} else {
		g.counter++
	}
	g.mu.Unlock()

	ms := uint64(g.now().UnixMilli())

	var b [16]byte
	binary.BigEndian.PutUint32(b[0:4], g.identity.Host)
	binary.BigEndian.PutUint32(b[4:8], g.identity.Start)
	binary.BigEndian.PutUint16(b[8:10], uint16(ms>>32))
	binary.BigEndian.PutUint32(b[10:14], uint32(ms))
	binary.BigEndian.PutUint16(b[14:16], counter)
	return hex.EncodeToString(b[:]), nil
}

func (g *ProcessGenerator) GenerateBatch(ctx context.Context, count int) ([]string, error) {
	return generateBatch(ctx, count, g.Generate)
}

func (g *ProcessGenerator) Validate(id string) (bool, string) {
	if _, reason := decodeProcessID(id); reason != "" {
		return false, reason
	}
	return true, ""
}

func (g *ProcessGenerator) Parse(id string) (*ParseResult, error) {
	b, reason := decodeProcessID(id)
	if reason != "" {
		return nil, fmt.Errorf("invalid process id: %s", reason)
	}

	var host [4]byte
	copy(host[:], b[0:4])
	hi := uint64(binary.BigEndian.Uint16(b[8:10]))
	lo := uint64(binary.BigEndian.Uint32(b[10:14]))

	return &ParseResult{
		Host:         net.IP(host[:]).String(),
		ProcessStart: binary.BigEndian.Uint32(b[4:8]),
		TimestampMs:  int64(hi<<32 | lo),
		Counter:      binary.BigEndian.Uint16(b[14:16]),
		IDLength:     processIDLength,
	}, nil
}

func decodeProcessID(id string) ([]byte, string) {
	if len(id) != processIDLength {
		return nil, fmt.Sprintf("expected length %d, got %d", processIDLength, len(id))
	}
	for _, c := range id {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return nil, fmt.Sprintf("character '%c' is not lowercase hex", c)
		}
	}
	b, err := hex.DecodeString(id)
	if err != nil {
		return nil, fmt.Sprintf("invalid hex: %v", err)
	}
	if binary.BigEndian.Uint16(b[14:16]) > maxCounter {
		return nil, "counter out of range"
	}
	return b, ""
}
