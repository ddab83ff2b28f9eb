package store

import (
	"context"
	"time"

	"github.com/aseptimu/matchup-votes/internal/app/matchup"
	"github.com/aseptimu/matchup-votes/internal/app/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Database хранит голоса в PostgreSQL (таблица votes из миграций).
type Database struct {
	dbpool  *pgxpool.Pool
	timeout time.Duration
	logger  *zap.SugaredLogger
}

func NewDB(ctx context.Context, ps string, timeout time.Duration, logger *zap.SugaredLogger) (*Database, error) {
	dbpool, err := pgxpool.New(ctx, ps)
	if err != nil {
		logger.Errorw("failed to connect to database", "err", err)
		return nil, unavailable("connect", err)
	}

	return &Database{dbpool: dbpool, timeout: timeout, logger: logger}, nil
}

func (db *Database) Ping(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, db.timeout)
	defer cancel()
	if err := db.dbpool.Ping(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

const (
	IncrementVoteQuery = `INSERT INTO votes (matchup, choice, count) VALUES ($1, $2, 1)
         ON CONFLICT (matchup, choice) DO UPDATE SET count = votes.count + 1`
	AddVotesQuery = `INSERT INTO votes (matchup, choice, count) VALUES ($1, $2, $3)
         ON CONFLICT (matchup, choice) DO UPDATE SET count = votes.count + EXCLUDED.count`
	GetTallyQuery         = "SELECT choice, count FROM votes WHERE matchup = $1"
	DumpVotesQuery        = "SELECT matchup, choice, count FROM votes"
	UnnormalizedKeysQuery = "SELECT matchup, choice, count FROM votes WHERE strpos(matchup, '_') > 0 FOR UPDATE"
	DeleteVoteQuery       = "DELETE FROM votes WHERE matchup = $1 AND choice = $2"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryTally(ctx context.Context, q querier, key string) (service.Tally, error) {
	rows, err := q.Query(ctx, GetTallyQuery, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tally := service.Tally{}
	for rows.Next() {
		var choice string
		var count int64
		if err := rows.Scan(&choice, &count); err != nil {
			return nil, err
		}
		tally[choice] = count
	}
	return tally, rows.Err()
}

func (db *Database) Get(ctx context.Context, key string) (service.Tally, error) {
	ctx, cancel := withTimeout(ctx, db.timeout)
	defer cancel()

	tally, err := queryTally(ctx, db.dbpool, key)
	if err != nil {
		db.logger.Errorw("failed to query tally", "matchup", key, "err", err)
		return nil, unavailable("get", err)
	}
	return tally, nil
}

func (db *Database) Dump(ctx context.Context) (map[string]service.Tally, error) {
	ctx, cancel := withTimeout(ctx, db.timeout)
	defer cancel()

	rows, err := db.dbpool.Query(ctx, DumpVotesQuery)
	if err != nil {
		return nil, unavailable("dump", err)
	}
	defer rows.Close()

	var records []voteRow
	for rows.Next() {
		var rec voteRow
		if err := rows.Scan(&rec.Matchup, &rec.Choice, &rec.Count); err != nil {
			return nil, unavailable("dump", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("dump", err)
	}
	return rowsToData(records), nil
}

// Increment выполняет upsert и чтение итогов в одной транзакции;
// гонку read-modify-write закрывает сама СУБД через ON CONFLICT.
func (db *Database) Increment(ctx context.Context, key, choice string) (service.Tally, error) {
	ctx, cancel := withTimeout(ctx, db.timeout)
	defer cancel()

	db.logger.Debugw("Incrementing vote", "matchup", key, "choice", choice)

	tx, err := db.dbpool.Begin(ctx)
	if err != nil {
		return nil, unavailable("begin", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, IncrementVoteQuery, key, choice); err != nil {
		db.logger.Errorw("Failed to increment vote", "matchup", key, "choice", choice, "err", err)
		return nil, unavailable("increment", err)
	}

	tally, err := queryTally(ctx, tx, key)
	if err != nil {
		return nil, unavailable("get", err)
	}

	if err := tx.Commit(ctx); err != nil {
		db.logger.Errorw("Failed to commit vote", "matchup", key, "choice", choice, "err", err)
		return nil, unavailable("commit", err)
	}
	return tally, nil
}

func (db *Database) NormalizeKeys(ctx context.Context) (int, error) {
	ctx, cancel := withTimeout(ctx, db.timeout)
	defer cancel()

	tx, err := db.dbpool.Begin(ctx)
	if err != nil {
		return 0, unavailable("begin", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, UnnormalizedKeysQuery)
	if err != nil {
		return 0, unavailable("scan keys", err)
	}
	var records []voteRow
	for rows.Next() {
		var rec voteRow
		if err := rows.Scan(&rec.Matchup, &rec.Choice, &rec.Count); err != nil {
			rows.Close()
			return 0, unavailable("scan keys", err)
		}
		records = append(records, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, unavailable("scan keys", err)
	}

	changed := make(map[string]struct{})
	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(AddVotesQuery, matchup.Normalize(rec.Matchup), rec.Choice, rec.Count)
		batch.Queue(DeleteVoteQuery, rec.Matchup, rec.Choice)
		changed[rec.Matchup] = struct{}{}
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return 0, unavailable("merge keys", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, unavailable("commit", err)
	}
	return len(changed), nil
}

func (db *Database) Close() error {
	db.dbpool.Close()
	return nil
}
