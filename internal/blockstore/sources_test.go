package blockstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/sequence-service/pkg/database"
)

// reserveSequence checks the shared contract: every reservation returns the
// previous bound plus the increment.
func reserveSequence(t *testing.T, src Source, start uint64) {
	t.Helper()
	ctx := context.Background()

	bound, err := src.ReserveBlock(ctx, 1000)
	require.NoError(t, err)
	assert.Equal(t, start+1000, bound)

	bound, err = src.ReserveBlock(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, start+1001, bound)

	_, err = src.ReserveBlock(ctx, 0)
	assert.ErrorIs(t, err, ErrInvalidIncrement)

	if p, ok := src.(Peeker); ok {
		current, err := p.Current(ctx)
		require.NoError(t, err)
		assert.Equal(t, start+1001, current)
	}
}

func sqliteConfig(t *testing.T) *database.Config {
	return &database.Config{
		Driver:   "sqlite",
		FilePath: filepath.Join(t.TempDir(), "sequence.db"),
	}
}

func TestGormStore(t *testing.T) {
	ctx := context.Background()
	db, err := database.New(sqliteConfig(t))
	require.NoError(t, err)

	s, err := NewGormStore(ctx, db, "orders")
	require.NoError(t, err)
	reserveSequence(t, s, 0)

	other, err := NewGormStore(ctx, db, "invoices")
	require.NoError(t, err)
	bound, err := other.ReserveBlock(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), bound, "sequences are independent rows")

	again, err := NewGormStore(ctx, db, "orders")
	require.NoError(t, err)
	bound, err = again.ReserveBlock(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(1011), bound, "existing row is reused")

	require.NoError(t, s.Close())
}

func TestGormStore_RequiresName(t *testing.T) {
	db, err := database.New(sqliteConfig(t))
	require.NoError(t, err)
	_, err = NewGormStore(context.Background(), db, "")
	assert.Error(t, err)
}

func TestBoltStore(t *testing.T) {
	cfg := BoltConfig{Path: filepath.Join(t.TempDir(), "nested", "sequence.bolt")}

	s, err := NewBoltStore(cfg, "orders")
	require.NoError(t, err)
	reserveSequence(t, s, 0)
	require.NoError(t, s.Close())

	reopened, err := NewBoltStore(cfg, "orders")
	require.NoError(t, err)
	defer reopened.Close()
	reserveSequence(t, reopened, 1001)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDRESS")
	if addr == "" {
		t.Skip("REDIS_ADDRESS not set")
	}
	ctx := context.Background()

	s, err := NewRedisStore(ctx, RedisConfig{Address: addr, Prefix: "seq-test"}, t.Name())
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.client.Del(ctx, s.Key()).Err())

	reserveSequence(t, s, 0)
	require.NoError(t, s.client.Del(ctx, s.Key()).Err())
}

func TestRedisStore_Key(t *testing.T) {
	assert.Equal(t, "seq:orders", NewRedisStoreFromClient(nil, "seq", "orders").Key())
	assert.Equal(t, "orders", NewRedisStoreFromClient(nil, "", "orders").Key())
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.Nop()

	t.Run("file", func(t *testing.T) {
		src, err := Open(ctx, Config{Driver: DriverFile, File: FileConfig{Path: t.TempDir(), AlwaysOpen: true}}, logger)
		require.NoError(t, err)
		defer src.Close()
		assert.IsType(t, &FileStore{}, src)
		reserveSequence(t, src, 0)
	})

	t.Run("database", func(t *testing.T) {
		src, err := Open(ctx, Config{Driver: DriverDatabase, Name: "orders", Database: sqliteConfig(t)}, logger)
		require.NoError(t, err)
		defer src.Close()
		assert.IsType(t, &GormStore{}, src)
	})

	t.Run("database without config", func(t *testing.T) {
		_, err := Open(ctx, Config{Driver: DriverDatabase, Name: "orders"}, logger)
		assert.Error(t, err)
	})

	t.Run("bolt", func(t *testing.T) {
		src, err := Open(ctx, Config{Driver: DriverBolt, Name: "orders", Bolt: BoltConfig{Path: filepath.Join(t.TempDir(), "s.bolt")}}, logger)
		require.NoError(t, err)
		defer src.Close()
		assert.IsType(t, &BoltStore{}, src)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := Open(ctx, Config{Driver: "etcd"}, logger)
		assert.ErrorIs(t, err, ErrUnknownDriver)
	})
}
