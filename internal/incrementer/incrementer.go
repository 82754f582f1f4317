package incrementer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"github.com/weiawesome/wes-io-live/sequence-service/internal/blockstore"
)

type state int

const (
	stateUninitialized state = iota
	stateReady
	stateClosed
)

// Observer receives reservation and issuance events, e.g. for metrics.
type Observer interface {
	BlockReserved(name string, increment uint64, took time.Duration, err error)
	IDIssued(name string, id uint64)
}

// Incrementer hands out identifiers from blocks reserved on a Source. One
// mutex per instance guards the cursor and every reservation, so the order
// of issuance is the order in which callers acquire it.
//
// An Incrementer owns its Source: nothing else may reserve blocks on it while
// the Incrementer is alive.
type Incrementer struct {
	mu       sync.Mutex
	state    state
	name     string
	src      blockstore.Source
	strategy Strategy
	opts     Options
	current  atomic.Uint64

	logger   zerolog.Logger
	observer Observer
}

// Option customizes an Incrementer.
type Option func(*Incrementer)

// WithLogger sets the logger. The default logger discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(inc *Incrementer) {
		inc.logger = logger
	}
}

// WithObserver registers an observer for reservations and issued ids.
func WithObserver(o Observer) Option {
	return func(inc *Incrementer) {
		inc.observer = o
	}
}

// WithName overrides the name used in logs and metrics, which defaults to the
// strategy name.
func WithName(name string) Option {
	return func(inc *Incrementer) {
		inc.name = name
	}
}

// New returns an uninitialized Incrementer. Init must be called before any
// identifier is requested.
func New(src blockstore.Source, strategy Strategy, opts Options, options ...Option) *Incrementer {
	inc := &Incrementer{
		name:     strategy.Name(),
		src:      src,
		strategy: strategy,
		opts:     opts,
		logger:   zerolog.Nop(),
	}
	for _, o := range options {
		o(inc)
	}
	inc.logger = inc.logger.With().Str("incrementer", inc.name).Logger()
	return inc
}

// NewSequence returns an Incrementer issuing a plain incrementing sequence.
func NewSequence(src blockstore.Source, opts Options, options ...Option) *Incrementer {
	return New(src, &Sequence{}, opts, options...)
}

// NewHiLo returns an Incrementer issuing HiLo-encoded keys.
func NewHiLo(src blockstore.Source, opts Options, options ...Option) *Incrementer {
	return New(src, &HiLo{}, opts, options...)
}

// Init normalizes the options and reserves the opening block. On failure the
// Incrementer stays uninitialized and Init may be retried.
func (inc *Incrementer) Init(ctx context.Context) error {
	inc.mu.Lock()
	defer inc.mu.Unlock()

	switch inc.state {
	case stateReady:
		return ErrAlreadyInitialized
	case stateClosed:
		return ErrClosed
	}

	opts := inc.opts.normalize(inc.logger)
	if err := inc.strategy.Seed(ctx, inc.reserve, opts); err != nil {
		return fmt.Errorf("failed to initialize %s incrementer: %w", inc.name, err)
	}

	inc.opts = opts
	inc.state = stateReady
	inc.logger.Info().
		Uint64("block_size", opts.BlockSize).
		Uint64("delta", opts.Delta).
		Int("padding_length", opts.PaddingLength).
		Msg("incrementer initialized")
	return nil
}

// NextLongValue returns the next identifier. Any error means no identifier
// was issued.
func (inc *Incrementer) NextLongValue(ctx context.Context) (uint64, error) {
	inc.mu.Lock()
	defer inc.mu.Unlock()

	if err := inc.checkReady(); err != nil {
		return 0, err
	}
	id, err := inc.strategy.Next(ctx, inc.reserve)
	if err != nil {
		return 0, err
	}
	inc.issue(id)
	return id, nil
}

// NextStringValue returns the next identifier rendered with Format.
func (inc *Incrementer) NextStringValue(ctx context.Context) (string, error) {
	id, err := inc.NextLongValue(ctx)
	if err != nil {
		return "", err
	}
	return Format(id, inc.opts.PaddingLength), nil
}

// NextBatch returns count consecutive identifiers issued under one lock
// acquisition. If a reservation fails part way, the identifiers drawn so far
// are forfeited, none of them counts as issued and the error is returned.
func (inc *Incrementer) NextBatch(ctx context.Context, count int) ([]uint64, error) {
	if count < 1 {
		return nil, fmt.Errorf("count must be positive, got %d", count)
	}

	inc.mu.Lock()
	defer inc.mu.Unlock()

	if err := inc.checkReady(); err != nil {
		return nil, err
	}

	ids := make([]uint64, 0, count)
	for i := 0; i < count; i++ {
		id, err := inc.strategy.Next(ctx, inc.reserve)
		if err != nil {
			if len(ids) > 0 {
				inc.logger.Warn().Err(err).Int("forfeited", len(ids)).Msg("batch aborted")
			}
			return nil, err
		}
		ids = append(ids, id)
	}
	inc.issue(ids...)
	return ids, nil
}

// CurrentValue returns the last issued identifier, or 0 if none was issued.
// It never touches storage.
func (inc *Incrementer) CurrentValue() uint64 {
	return inc.current.Load()
}

// Name returns the name used in logs and metrics.
func (inc *Incrementer) Name() string {
	return inc.name
}

// Kind returns the strategy name.
func (inc *Incrementer) Kind() string {
	return inc.strategy.Name()
}

// Options returns the effective options; after Init they reflect coercion.
func (inc *Incrementer) Options() Options {
	inc.mu.Lock()
	defer inc.mu.Unlock()
	return inc.opts
}

// Source returns the backing block source.
func (inc *Incrementer) Source() blockstore.Source {
	return inc.src
}

// Close moves the Incrementer to its terminal state and releases the source.
// Calling Close more than once is a no-op.
func (inc *Incrementer) Close() error {
	inc.mu.Lock()
	defer inc.mu.Unlock()

	if inc.state == stateClosed {
		return nil
	}
	inc.state = stateClosed
	inc.logger.Info().Uint64("current_value", inc.current.Load()).Msg("incrementer closed")

	if err := inc.src.Close(); err != nil {
		return fmt.Errorf("failed to close block source: %w", err)
	}
	return nil
}

// checkReady must be called with inc.mu held.
func (inc *Incrementer) checkReady() error {
	switch inc.state {
	case stateUninitialized:
		return ErrNotInitialized
	case stateClosed:
		return ErrClosed
	}
	return nil
}

// issue records ids as handed to the caller. It must be called with inc.mu
// held, and only once nothing can fail anymore.
func (inc *Incrementer) issue(ids ...uint64) {
	if len(ids) == 0 {
		return
	}
	inc.current.Store(ids[len(ids)-1])
	if inc.observer == nil {
		return
	}
	for _, id := range ids {
		inc.observer.IDIssued(inc.name, id)
	}
}

// reserve is handed to the strategy; it runs with inc.mu held.
func (inc *Incrementer) reserve(ctx context.Context, increment uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	start := time.Now()
	bound, err := inc.src.ReserveBlock(ctx, increment)
	took := time.Since(start)

	if inc.observer != nil {
		inc.observer.BlockReserved(inc.name, increment, took, err)
	}
	if err != nil {
		inc.logger.Error().Err(err).Uint64("increment", increment).Msg("failed to reserve block")
		return 0, fmt.Errorf("failed to reserve block: %w", err)
	}

	inc.logger.Debug().
		Uint64("increment", increment).
		Uint64("block_upper_bound", bound).
		Dur("took", took).
		Msg("block reserved")
	return bound, nil
}
