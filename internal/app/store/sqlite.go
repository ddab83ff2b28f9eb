package store

import (
	"context"
	"fmt"
	"time"

	"github.com/aseptimu/matchup-votes/internal/app/matchup"
	"github.com/aseptimu/matchup-votes/internal/app/service"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS votes (
	matchup TEXT NOT NULL,
	choice  TEXT NOT NULL,
	count   INTEGER NOT NULL DEFAULT 0 CHECK (count >= 0),
	PRIMARY KEY (matchup, choice)
);`

const (
	sqliteIncrementQuery = `INSERT INTO votes (matchup, choice, count) VALUES (?, ?, 1)
         ON CONFLICT (matchup, choice) DO UPDATE SET count = votes.count + 1`
	sqliteAddQuery = `INSERT INTO votes (matchup, choice, count) VALUES (?, ?, ?)
         ON CONFLICT (matchup, choice) DO UPDATE SET count = votes.count + excluded.count`
	sqliteTallyQuery      = "SELECT matchup, choice, count FROM votes WHERE matchup = ?"
	sqliteDumpQuery       = "SELECT matchup, choice, count FROM votes"
	sqliteUnderscoreQuery = "SELECT matchup, choice, count FROM votes WHERE instr(matchup, '_') > 0"
	sqliteDeleteQuery     = "DELETE FROM votes WHERE matchup = ? AND choice = ?"
)

type voteRow struct {
	Matchup string `db:"matchup"`
	Choice  string `db:"choice"`
	Count   int64  `db:"count"`
}

// SQLiteStore хранит голоса в SQLite, по строке на пару (матчап, вариант).
// Пул ограничен одним соединением, поэтому записи идут строго по очереди.
type SQLiteStore struct {
	db      *sqlx.DB
	timeout time.Duration
	logger  *zap.SugaredLogger
}

func NewSQLiteStore(ctx context.Context, path string, timeout time.Duration, logger *zap.SugaredLogger) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, unavailable("open sqlite", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, timeout: timeout, logger: logger}

	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	for _, stmt := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode = WAL", sqliteSchema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, unavailable("init sqlite", err)
		}
	}

	logger.Debugw("SQLite store ready", "path", path)
	return s, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *SQLiteStore) Dump(ctx context.Context) (map[string]service.Tally, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var rows []voteRow
	if err := s.db.SelectContext(ctx, &rows, sqliteDumpQuery); err != nil {
		s.logger.Errorw("Failed to dump votes", "err", err)
		return nil, unavailable("dump", err)
	}
	return rowsToData(rows), nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (service.Tally, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var rows []voteRow
	if err := s.db.SelectContext(ctx, &rows, sqliteTallyQuery, key); err != nil {
		s.logger.Errorw("Failed to query tally", "matchup", key, "err", err)
		return nil, unavailable("get", err)
	}
	return rowsToTally(rows), nil
}

func (s *SQLiteStore) Increment(ctx context.Context, key, choice string) (service.Tally, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, unavailable("begin", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, sqliteIncrementQuery, key, choice); err != nil {
		s.logger.Errorw("Failed to increment vote", "matchup", key, "choice", choice, "err", err)
		return nil, unavailable("increment", err)
	}

	var rows []voteRow
	if err := tx.SelectContext(ctx, &rows, sqliteTallyQuery, key); err != nil {
		return nil, unavailable("get", err)
	}

	if err := tx.Commit(); err != nil {
		s.logger.Errorw("Failed to commit vote", "matchup", key, "choice", choice, "err", err)
		return nil, unavailable("commit", err)
	}
	return rowsToTally(rows), nil
}

func (s *SQLiteStore) NormalizeKeys(ctx context.Context) (int, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, unavailable("begin", err)
	}
	defer tx.Rollback()

	var rows []voteRow
	if err := tx.SelectContext(ctx, &rows, sqliteUnderscoreQuery); err != nil {
		return 0, unavailable("scan keys", err)
	}

	changed := make(map[string]struct{})
	for _, row := range rows {
		if _, err := tx.ExecContext(ctx, sqliteAddQuery, matchup.Normalize(row.Matchup), row.Choice, row.Count); err != nil {
			return 0, unavailable("merge "+row.Matchup, err)
		}
		if _, err := tx.ExecContext(ctx, sqliteDeleteQuery, row.Matchup, row.Choice); err != nil {
			return 0, unavailable("delete "+row.Matchup, err)
		}
		changed[row.Matchup] = struct{}{}
	}

	if err := tx.Commit(); err != nil {
		return 0, unavailable("commit", err)
	}
	return len(changed), nil
}

func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

func rowsToTally(rows []voteRow) service.Tally {
	tally := make(service.Tally, len(rows))
	for _, row := range rows {
		tally[row.Choice] = row.Count
	}
	return tally
}

func rowsToData(rows []voteRow) map[string]service.Tally {
	data := make(map[string]service.Tally)
	for _, row := range rows {
		tally := data[row.Matchup]
		if tally == nil {
			tally = service.Tally{}
			data[row.Matchup] = tally
		}
		tally[row.Choice] = row.Count
	}
	return data
}
