// Package backup периодически сохраняет копию всех голосов в каталог или S3.
// Копия не участвует в записи голосов: каждое увеличение счётчика уже
// сохранено хранилищем к моменту ответа клиенту.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aseptimu/matchup-votes/internal/app/service"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Source отдаёт содержимое хранилища (см. service.VoteService.Raw).
type Source interface {
	Raw(ctx context.Context) (map[string]service.Tally, error)
}

// Sink сохраняет один снимок под именем name.
type Sink interface {
	Put(ctx context.Context, name string, payload []byte) error
}

// Snapshot - содержимое файла резервной копии.
type Snapshot struct {
	TakenAt time.Time                `json:"taken_at"`
	Votes   map[string]service.Tally `json:"votes"`
}

// ObjectName возвращает имя снимка, сделанного в момент t.
func ObjectName(t time.Time) string {
	return "votes-" + t.UTC().Format("20060102T150405Z") + ".json"
}

type Scheduler struct {
	cron    *cron.Cron
	source  Source
	sink    Sink
	timeout time.Duration
	logger  *zap.SugaredLogger
	now     func() time.Time
}

// NewScheduler регистрирует задачу резервного копирования по расписанию schedule
// (стандартный пятипольный cron или @every/@hourly).
func NewScheduler(schedule string, source Source, sink Sink, timeout time.Duration, logger *zap.SugaredLogger) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(),
		source:  source,
		sink:    sink,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}

	if _, err := s.cron.AddFunc(schedule, s.runLogged); err != nil {
		return nil, fmt.Errorf("invalid BACKUP_SCHEDULE %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Scheduler) runLogged() {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	name, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Errorw("Backup failed", "err", err)
		return
	}
	s.logger.Infow("Backup written", "name", name)
}

// RunOnce снимает копию голосов и передаёт её sink. Возвращает имя снимка.
func (s *Scheduler) RunOnce(ctx context.Context) (string, error) {
	votes, err := s.source.Raw(ctx)
	if err != nil {
		return "", fmt.Errorf("read votes: %w", err)
	}

	now := s.now()
	payload, err := json.MarshalIndent(Snapshot{TakenAt: now.UTC(), Votes: votes}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}

	name := ObjectName(now)
	if err := s.sink.Put(ctx, name, payload); err != nil {
		return "", fmt.Errorf("store snapshot %s: %w", name, err)
	}
	return name, nil
}

// Run запускает расписание и останавливает его при отмене ctx,
// дожидаясь завершения уже начатой копии.
func (s *Scheduler) Run(ctx context.Context) {
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
}
