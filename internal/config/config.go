package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/weiawesome/wes-io-live/sequence-service/internal/blockstore"
	"github.com/weiawesome/wes-io-live/sequence-service/internal/incrementer"
	pkgconfig "github.com/weiawesome/wes-io-live/sequence-service/pkg/config"
	"github.com/weiawesome/wes-io-live/sequence-service/pkg/database"
)

const (
	sequenceFileName = blockstore.DefaultFileName
	hiloFileName     = "incrementer.hilo.dat"
)

type Config struct {
	Server   ServerConfig
	Sequence SequenceConfig
	HiLo     HiLoConfig `mapstructure:"hilo"`
	Store    StoreConfig
	Log      LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type SequenceConfig struct {
	BlockSize     int    `mapstructure:"block_size"`
	Delta         int    `mapstructure:"delta"`
	PaddingLength int    `mapstructure:"padding_length"`
	File          string `mapstructure:"file"`
}

type HiLoConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	BlockSize     int    `mapstructure:"block_size"`
	PaddingLength int    `mapstructure:"padding_length"`
	File          string `mapstructure:"file"`
}

type StoreConfig struct {
	Driver     string                 `mapstructure:"driver"`
	Name       string                 `mapstructure:"name"`
	AlwaysOpen bool                   `mapstructure:"always_open"`
	Sync       bool                   `mapstructure:"sync"`
	Lock       bool                   `mapstructure:"lock"`
	Database   DatabaseConfig         `mapstructure:"database"`
	Redis      blockstore.RedisConfig `mapstructure:"redis"`
	Bolt       blockstore.BoltConfig  `mapstructure:"bolt"`
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	FilePath        string `mapstructure:"file_path"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	LogLevel        string `mapstructure:"log_level"`
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config",
		pkgconfig.WithDefaults(map[string]any{
			"server.host": "0.0.0.0",
			"server.port": 8091,

			"sequence.block_size":     incrementer.DefaultBlockSize,
			"sequence.delta":          incrementer.DefaultDelta,
			"sequence.padding_length": 0,
			"sequence.file":           "",

			"hilo.enabled":        true,
			"hilo.block_size":     incrementer.DefaultBlockSize,
			"hilo.padding_length": 0,
			"hilo.file":           "",

			"store.driver":      blockstore.DriverFile,
			"store.name":        "sequence",
			"store.always_open": true,
			"store.sync":        false,
			"store.lock":        false,

			"store.database.driver":            "sqlite",
			"store.database.host":              "localhost",
			"store.database.port":              5432,
			"store.database.user":              "postgres",
			"store.database.password":          "postgres",
			"store.database.dbname":            "sequence_service",
			"store.database.sslmode":           "disable",
			"store.database.file_path":         "./data/sequence.db",
			"store.database.log_level":         "silent",
			"store.database.max_idle_conns":    10,
			"store.database.max_open_conns":    100,
			"store.database.conn_max_lifetime": 60,

			"store.redis.address":  "localhost:6379",
			"store.redis.password": "",
			"store.redis.db":       0,
			"store.redis.prefix":   "seq",

			"store.bolt.path": "./data/sequence.bolt",

			"log.level": "info",
		}),
		pkgconfig.WithEnv(map[string]string{
			"server.port":              "PORT",
			"sequence.file":            "SEQUENCE_FILE",
			"hilo.file":                "HILO_FILE",
			"store.database.driver":    "DB_DRIVER",
			"store.database.host":      "DB_HOST",
			"store.database.port":      "DB_PORT",
			"store.database.user":      "DB_USER",
			"store.database.password":  "DB_PASSWORD",
			"store.database.dbname":    "DB_NAME",
			"store.database.sslmode":   "DB_SSLMODE",
			"store.database.file_path": "DB_FILE_PATH",
			"store.redis.address":      "REDIS_ADDRESS",
			"store.redis.password":     "REDIS_PASSWORD",
			"store.bolt.path":          "BOLT_PATH",
		}),
	)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings under which the sequence and hilo incrementers
// would reserve blocks on the same counter file.
func (c *Config) Validate() error {
	if !c.HiLo.Enabled {
		return nil
	}
	if d := c.Store.Driver; d != "" && d != blockstore.DriverFile {
		return nil
	}
	if c.Sequence.File == "" || c.HiLo.File == "" {
		return nil
	}

	seq, hilo := filepath.Clean(c.Sequence.File), filepath.Clean(c.HiLo.File)
	if seq != hilo {
		return nil
	}
	// A shared directory is fine, each counter gets its own file name in it.
	if info, err := os.Stat(seq); err == nil && info.IsDir() {
		return nil
	}
	return fmt.Errorf("sequence.file and hilo.file both point to counter file %s", seq)
}

// SequenceOptions converts the sequence settings; out-of-range values are
// left for the incrementer to coerce.
func (c *Config) SequenceOptions() incrementer.Options {
	return incrementer.Options{
		BlockSize:     nonNegative(c.Sequence.BlockSize),
		Delta:         nonNegative(c.Sequence.Delta),
		PaddingLength: c.Sequence.PaddingLength,
	}
}

// HiLoOptions converts the hilo settings.
func (c *Config) HiLoOptions() incrementer.Options {
	return incrementer.Options{
		BlockSize:     nonNegative(c.HiLo.BlockSize),
		Delta:         1,
		PaddingLength: c.HiLo.PaddingLength,
	}
}

// SequenceStore is the block store config for the sequence counter.
func (c *Config) SequenceStore() blockstore.Config {
	return c.blockStore(c.Store.Name, c.Sequence.File, sequenceFileName)
}

// HiLoStore is the block store config for the hilo counter. It uses its own
// row or key, and its own file name when the location is a directory; Validate
// catches two locations naming the same file.
func (c *Config) HiLoStore() blockstore.Config {
	return c.blockStore(c.Store.Name+"_hilo", c.HiLo.File, hiloFileName)
}

func (c *Config) blockStore(name, location, fileName string) blockstore.Config {
	cfg := blockstore.Config{
		Driver: c.Store.Driver,
		Name:   name,
		File: blockstore.FileConfig{
			Path:       location,
			FileName:   fileName,
			AlwaysOpen: c.Store.AlwaysOpen,
			Sync:       c.Store.Sync,
			Lock:       c.Store.Lock,
		},
		Redis: c.Store.Redis,
		Bolt:  c.Store.Bolt,
	}

	if c.Store.Driver == blockstore.DriverDatabase {
		db := c.Store.Database
		cfg.Database = &database.Config{
			Driver:          db.Driver,
			Host:            db.Host,
			Port:            db.Port,
			User:            db.User,
			Password:        db.Password,
			DBName:          db.DBName,
			SSLMode:         db.SSLMode,
			FilePath:        db.FilePath,
			MaxIdleConns:    db.MaxIdleConns,
			MaxOpenConns:    db.MaxOpenConns,
			ConnMaxLifetime: db.ConnMaxLifetime,
			LogLevel:        db.LogLevel,
		}
	}
	return cfg
}

func nonNegative(v int) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}
