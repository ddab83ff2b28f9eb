// Package server связывает хранилище, сервис, HTTP-слой и резервное копирование.
package server

import (
	"context"
	"fmt"

	"github.com/aseptimu/matchup-votes/internal/app/backup"
	"github.com/aseptimu/matchup-votes/internal/app/config"
	handlers "github.com/aseptimu/matchup-votes/internal/app/handlers/http"
	"github.com/aseptimu/matchup-votes/internal/app/metrics"
	httpserver "github.com/aseptimu/matchup-votes/internal/app/server/http"
	"github.com/aseptimu/matchup-votes/internal/app/service"
	"github.com/aseptimu/matchup-votes/internal/app/store"
	"go.uber.org/zap"
)

// Run открывает хранилище, один раз нормализует сохранённые ключи и обслуживает
// запросы до отмены ctx. Хранилище закрывается при выходе.
func Run(ctx context.Context, cfg *config.ConfigType, logger *zap.SugaredLogger) error {
	voteStore, err := store.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open vote store: %w", err)
	}
	defer func() {
		if err := voteStore.Close(); err != nil {
			logger.Errorw("Failed to close vote store", "err", err)
		}
	}()

	m := metrics.New()
	voteService := service.NewVoteService(voteStore, m)

	changed, err := voteService.MigrateKeys(ctx)
	if err != nil {
		return fmt.Errorf("normalize stored keys: %w", err)
	}
	if changed > 0 {
		logger.Infow("Normalized stored matchup keys", "changed", changed)
	}

	if cfg.BackupSchedule != "" {
		scheduler, err := newBackupScheduler(ctx, cfg, voteService, logger)
		if err != nil {
			return err
		}
		go scheduler.Run(ctx)
	}

	h := handlers.New(cfg, voteService, voteStore, m.Handler(), logger)
	srv, err := httpserver.NewServer(cfg, logger, h, m)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

func newBackupScheduler(ctx context.Context, cfg *config.ConfigType, source backup.Source, logger *zap.SugaredLogger) (*backup.Scheduler, error) {
	var sink backup.Sink
	switch {
	case cfg.BackupS3Bucket != "":
		s3Sink, err := backup.NewS3Sink(ctx, cfg.BackupS3Bucket, cfg.BackupS3Prefix)
		if err != nil {
			return nil, err
		}
		sink = s3Sink
		logger.Infow("Backups go to S3", "bucket", cfg.BackupS3Bucket, "prefix", cfg.BackupS3Prefix)
	case cfg.BackupDir != "":
		sink = backup.DirSink{Dir: cfg.BackupDir}
		logger.Infow("Backups go to directory", "dir", cfg.BackupDir)
	default:
		return nil, fmt.Errorf("BACKUP_SCHEDULE is set but neither BACKUP_DIR nor BACKUP_S3_BUCKET is")
	}

	return backup.NewScheduler(cfg.BackupSchedule, source, sink, cfg.StoreTimeout, logger)
}
