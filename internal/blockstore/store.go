package blockstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"github.com/weiawesome/wes-io-live/sequence-service/pkg/database"
)

// Source is a durable counter that hands out blocks of identifier space.
//
// ReserveBlock advances the persisted counter by increment and returns the new
// exclusive upper bound of everything reserved so far. Implementations are not
// required to be safe for uncoordinated concurrent callers; the incrementer
// serializes reservations on a single source.
type Source interface {
	ReserveBlock(ctx context.Context, increment uint64) (uint64, error)
	Close() error
}

// Peeker is implemented by sources that can report the persisted counter
// without advancing it.
type Peeker interface {
	Current(ctx context.Context) (uint64, error)
}

// Drivers accepted by Open.
const (
	DriverFile     = "file"
	DriverDatabase = "database"
	DriverRedis    = "redis"
	DriverBolt     = "bolt"
)

// counterSize is the width of the persisted counter in bytes.
const counterSize = 8

var (
	ErrInvalidIncrement = errors.New("block increment must be greater than zero")
	ErrCounterOverflow  = errors.New("persisted counter would overflow")
	ErrCorruptCounter   = errors.New("persisted counter is corrupt")
	ErrUnknownDriver    = errors.New("unknown block store driver")
)

// StorageError reports a failed storage operation. The persisted counter may be
// in any state after a StorageError; callers must treat the reservation as not
// having happened without assuming the counter was left unchanged.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("block store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Config selects and configures a Source.
type Config struct {
	Driver   string
	Name     string
	File     FileConfig
	Database *database.Config
	Redis    RedisConfig
	Bolt     BoltConfig
}

// Open builds the Source named by cfg.Driver.
func Open(ctx context.Context, cfg Config, logger zerolog.Logger) (Source, error) {
	logger = logger.With().Str("driver", cfg.Driver).Str("sequence", cfg.Name).Logger()

	switch cfg.Driver {
	case DriverFile, "":
		s, err := NewFileStore(cfg.File)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("path", s.Path()).Bool("always_open", cfg.File.AlwaysOpen).Msg("file block store ready")
		return s, nil

	case DriverDatabase:
		if cfg.Database == nil {
			return nil, fmt.Errorf("database driver selected without database config")
		}
		db, err := database.New(cfg.Database)
		if err != nil {
			return nil, err
		}
		s, err := NewGormStore(ctx, db, cfg.Name)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("db_driver", cfg.Database.Driver).Msg("database block store ready")
		return s, nil

	case DriverRedis:
		s, err := NewRedisStore(ctx, cfg.Redis, cfg.Name)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("key", s.Key()).Msg("redis block store ready")
		return s, nil

	case DriverBolt:
		s, err := NewBoltStore(cfg.Bolt, cfg.Name)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("path", cfg.Bolt.Path).Msg("bolt block store ready")
		return s, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// advance returns current+increment, refusing to wrap around.
func advance(current, increment uint64) (uint64, error) {
	if increment == 0 {
		return 0, ErrInvalidIncrement
	}
	if increment > math.MaxUint64-current {
		return 0, fmt.Errorf("%w: %d + %d", ErrCounterOverflow, current, increment)
	}
	return current + increment, nil
}

func decodeCounter(b []byte) (uint64, error) {
	switch {
	case len(b) == 0:
		return 0, nil
	case len(b) < counterSize:
		return 0, fmt.Errorf("%w: %d bytes", ErrCorruptCounter, len(b))
	}
	return binary.BigEndian.Uint64(b[:counterSize]), nil
}

func encodeCounter(v uint64) []byte {
	b := make([]byte, counterSize)
	binary.BigEndian.PutUint64(b, v)
	return b
}
