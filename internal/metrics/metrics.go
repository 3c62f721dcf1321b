package metrics

import (
	"context"

	"github.com/pavelc4/auriya/internal/errors"
	"github.com/pavelc4/auriya/internal/logger"
)

type service struct {
	repo Repository
	cfg  Config
}

type noopRecorder struct{}

// NewService returns a sqlite-backed Recorder, or a no-op one when
// recording is disabled.
func NewService(cfg Config, log logger.Logger) (Recorder, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		log.Debug().Msg("Decision history disabled, using no-op recorder")
		return Noop(), nil
	}

	repo, err := NewRepository(cfg, log)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to create metrics repository")
		return nil, err
	}

	log.Debug().
		Str("db_path", cfg.DBPath).
		Int("batch_size", cfg.BatchSize).
		Dur("batch_timeout", cfg.BatchTimeout).
		Msg("Metrics service initialized")

	return &service{repo: repo, cfg: cfg}, nil
}

// Noop returns a Recorder that drops everything
func Noop() Recorder {
	return noopRecorder{}
}

func (s *service) Record(ctx context.Context, snapshot *Snapshot) error {
	errFactory := errors.New()

	if snapshot == nil {
		return errFactory.New(ErrInvalidMetrics)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
	}

	if err := s.repo.Record(snapshot); err != nil {
		return errFactory.Wrap(ErrMetricsCollection, err)
	}

	return nil
}

func (s *service) Close() error {
	if err := s.repo.Close(); err != nil {
		return errors.New().Wrap(ErrStorageClose, err)
	}

	return nil
}

func (noopRecorder) Record(context.Context, *Snapshot) error {
	return nil
}

func (noopRecorder) Close() error {
	return nil
}
