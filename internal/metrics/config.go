package metrics

import (
	"path/filepath"
	"time"

	"github.com/pavelc4/auriya/internal/errors"
)

const (
	defaultDirPerm      = 0o755
	defaultDBPath       = "/data/adb/auriya/metrics.db"
	defaultBatchSize    = 32
	defaultBatchTimeout = 10 * time.Second
)

type Config struct {
	DBPath  string
	Enabled bool
	// BatchSize rows are buffered before a write; BatchTimeout bounds how
	// long a partial batch waits.
	BatchSize    int
	BatchTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		DBPath:       defaultDBPath,
		Enabled:      false,
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if !c.Enabled {
		return nil
	}
	if c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	if c.BatchSize < 1 {
		return errFactory.WithData(ErrInvalidConfig, "batch size must be positive")
	}

	return nil
}

func (c Config) backupDir() string {
	return filepath.Join(filepath.Dir(c.DBPath), "backups")
}
