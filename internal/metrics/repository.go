package metrics

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pavelc4/auriya/internal/errors"
	"github.com/pavelc4/auriya/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

type repository struct {
	db        *sql.DB
	logger    logger.Logger
	cfg       Config
	mu        sync.Mutex
	buffer    []*Snapshot
	closeOnce sync.Once
	shutdown  chan struct{}
	flushDone chan struct{}
}

// NewRepository opens (or creates) the sqlite database at cfg.DBPath.
// Rows are written in batches of cfg.BatchSize; a background flusher
// writes partial batches every cfg.BatchTimeout.
func NewRepository(cfg Config, log logger.Logger) (Repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	if err := ValidateAndUpdateSchema(db, cfg.backupDir(), log); err != nil {
		db.Close()
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Int("batch_size", cfg.BatchSize).
		Dur("batch_timeout", cfg.BatchTimeout).
		Msg("Metrics repository initialized")

	repo := &repository{
		db:        db,
		logger:    log,
		cfg:       cfg,
		buffer:    make([]*Snapshot, 0, cfg.BatchSize),
		shutdown:  make(chan struct{}),
		flushDone: make(chan struct{}),
	}

	go repo.flusher()

	return repo, nil
}

func (r *repository) Record(snapshot *Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer = append(r.buffer, snapshot)
	if len(r.buffer) >= r.cfg.BatchSize {
		return r.flush()
	}

	return nil
}

func (r *repository) Close() error {
	var closeErr error

	r.closeOnce.Do(func() {
		close(r.shutdown)
		<-r.flushDone

		if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			closeErr = errors.New().WithData(ErrStorageClose, struct {
				Phase string
				Error string
			}{
				Phase: "checkpoint_wal",
				Error: err.Error(),
			})
			r.db.Close()
			return
		}

		if err := r.db.Close(); err != nil {
			closeErr = errors.New().WithData(ErrStorageClose, struct {
				Phase string
				Error string
			}{
				Phase: "close_database",
				Error: err.Error(),
			})
			return
		}

		r.logger.Info().Msg("Metrics repository closed")
	})

	return closeErr
}

func (r *repository) flusher() {
	defer close(r.flushDone)

	var tick <-chan time.Time
	if r.cfg.BatchTimeout > 0 {
		ticker := time.NewTicker(r.cfg.BatchTimeout)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-tick:
			r.mu.Lock()
			_ = r.flush()
			r.mu.Unlock()
		case <-r.shutdown:
			r.mu.Lock()
			_ = r.flush()
			r.mu.Unlock()
			return
		}
	}
}

// flush writes the buffer in one transaction. Must hold mu.
func (r *repository) flush() error {
	if len(r.buffer) == 0 {
		return nil
	}

	errFactory := errors.New()

	tx, err := r.db.Begin()
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to begin transaction")
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	stmt, err := tx.Prepare(insertDecisionSQL)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to prepare statement")
		if err := tx.Rollback(); err != nil {
			r.logger.Error().Err(err).Msg("Failed to roll back transaction")
		}
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer stmt.Close()

	for _, s := range r.buffer {
		if _, err := stmt.Exec(
			s.Timestamp.UnixMilli(),
			string(s.Event),
			s.Package,
			int64(s.PID),
			s.Profile,
			s.Action,
			s.FPSShort,
			s.FPSLong,
			int64(s.TargetFPS),
			s.Temperature,
		); err != nil {
			r.logger.Error().Err(err).Msg("Failed to execute insert")
			if err := tx.Rollback(); err != nil {
				r.logger.Error().Err(err).Msg("Failed to roll back transaction")
			}
			return errFactory.Wrap(ErrTransactionFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		r.logger.Error().Err(err).Msg("Failed to commit transaction")
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	r.logger.Debug().Int("records", len(r.buffer)).Msg("Flushed decisions to database")
	r.buffer = r.buffer[:0]

	return nil
}
