package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/FranksOps/rankwatch/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS rank_records (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	run_at DATETIME NOT NULL,
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

// New creates a SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Save(ctx context.Context, rec *storage.RankRecord) error {
	query := `
	INSERT INTO rank_records (
		id, run_id, run_at, timestamp, keyword, branch, rank_local,
		match_title, match_link, match_address, match_telephone, error
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := b.db.ExecContext(ctx, query,
		rec.ID,
		rec.RunID,
		rec.RunAt.UTC(),
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
		return fmt.Errorf("sqlite: %w", err)
	}

	return nil
}

func (b *sqliteBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.RankRecord, error) {
	query := `SELECT id, run_id, run_at, timestamp, keyword, branch, rank_local, match_title, match_link, match_address, match_telephone, error FROM rank_records WHERE 1=1`
	args := []any{}

	if filter.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, filter.RunID)
	}
	if filter.Keyword != "" {
		query += ` AND keyword = ?`
		args = append(args, filter.Keyword)
	}
	if filter.Branch != "" {
		query += ` AND branch = ?`
		args = append(args, filter.Branch)
	}
	if filter.Ranked != nil {
		if *filter.Ranked {
			query += ` AND rank_local > 0`
		} else {
			query += ` AND rank_local = 0`
		}
	}
	if filter.Since != nil {
		query += ` AND run_at >= ?`
		args = append(args, filter.Since.UTC())
	}

	// rowid keeps the save order inside a run.
	query += ` ORDER BY run_at DESC, rowid ASC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	} else if filter.Offset > 0 {
		query += ` LIMIT -1`
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	defer rows.Close()

	var results []*storage.RankRecord
	for rows.Next() {
		var r storage.RankRecord
		var errNote sql.NullString

		err := rows.Scan(
			&r.ID, &r.RunID, &r.RunAt, &r.Timestamp, &r.Keyword, &r.Branch, &r.Rank,
			&r.MatchTitle, &r.MatchLink, &r.MatchAddress, &r.MatchTelephone, &errNote,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		r.Error = errNote.String

		results = append(results, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	return results, nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
