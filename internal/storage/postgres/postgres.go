package postgres

import (
	"context"
	"fmt"

	"github.com/FranksOps/rankwatch/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS rank_records (
	seq BIGSERIAL,
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	run_at TIMESTAMPTZ NOT NULL,
	timestamp TEXT NOT NULL,
	keyword TEXT NOT NULL,
	branch TEXT NOT NULL,
	rank_local INTEGER NOT NULL,
	match_title TEXT NOT NULL,
	match_link TEXT NOT NULL,
	match_address TEXT NOT NULL,
	match_telephone TEXT NOT NULL,
	error TEXT
);
CREATE INDEX IF NOT EXISTS rank_records_keyword_idx ON rank_records (keyword, branch);
`

// New creates a Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Save(ctx context.Context, rec *storage.RankRecord) error {
	query := `
	INSERT INTO rank_records (
		id, run_id, run_at, timestamp, keyword, branch, rank_local,
		match_title, match_link, match_address, match_telephone, error
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := b.pool.Exec(ctx, query,
		rec.ID,
		rec.RunID,
		rec.RunAt,
		rec.Timestamp,
		rec.Keyword,
		rec.Branch,
		rec.Rank,
		rec.MatchTitle,
		rec.MatchLink,
		rec.MatchAddress,
		rec.MatchTelephone,
		rec.Error,
	)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (b *postgresBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.RankRecord, error) {
	query := `SELECT id, run_id, run_at, timestamp, keyword, branch, rank_local, match_title, match_link, match_address, match_telephone, COALESCE(error, '') FROM rank_records WHERE 1=1`
	args := []any{}
	paramCount := 1

	if filter.RunID != "" {
		query += fmt.Sprintf(` AND run_id = $%d`, paramCount)
		args = append(args, filter.RunID)
		paramCount++
	}
	if filter.Keyword != "" {
		query += fmt.Sprintf(` AND keyword = $%d`, paramCount)
		args = append(args, filter.Keyword)
		paramCount++
	}
	if filter.Branch != "" {
		query += fmt.Sprintf(` AND branch = $%d`, paramCount)
		args = append(args, filter.Branch)
		paramCount++
	}
	if filter.Ranked != nil {
		if *filter.Ranked {
			query += ` AND rank_local > 0`
		} else {
			query += ` AND rank_local = 0`
		}
	}
	if filter.Since != nil {
		query += fmt.Sprintf(` AND run_at >= $%d`, paramCount)
		args = append(args, *filter.Since)
		paramCount++
	}

	query += ` ORDER BY run_at DESC, seq ASC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, paramCount)
		args = append(args, filter.Limit)
		paramCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, paramCount)
		args = append(args, filter.Offset)
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	defer rows.Close()

	var results []*storage.RankRecord
	for rows.Next() {
		var r storage.RankRecord

		err := rows.Scan(
			&r.ID, &r.RunID, &r.RunAt, &r.Timestamp, &r.Keyword, &r.Branch, &r.Rank,
			&r.MatchTitle, &r.MatchLink, &r.MatchAddress, &r.MatchTelephone, &r.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}

		results = append(results, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	return results, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}
