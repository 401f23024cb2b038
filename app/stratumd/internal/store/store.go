// Package store 负责份额与矿工数据的持久化：
// pgx 连接池写 PostgreSQL，redis 维护热点计数，后台任务定期清理历史数据。
package store

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema 表结构，启动时幂等应用
const Schema = `
CREATE TABLE IF NOT EXISTS workers (
    id            BIGSERIAL PRIMARY KEY,
    name          TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL DEFAULT '',
    enabled       BOOLEAN NOT NULL DEFAULT TRUE,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_seen_at  TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS shares (
    id           BIGSERIAL PRIMARY KEY,
    worker       TEXT NOT NULL,
    job_id       TEXT NOT NULL,
    extranonce2  TEXT NOT NULL,
    ntime        TEXT NOT NULL,
    nonce        TEXT NOT NULL,
    difficulty   DOUBLE PRECISION NOT NULL,
    accepted     BOOLEAN NOT NULL,
    reject_code  INT NOT NULL DEFAULT 0,
    submitted_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_shares_worker_time ON shares (worker, submitted_at);
CREATE INDEX IF NOT EXISTS idx_shares_time ON shares (submitted_at);
`

// ShareRecord 一条份额记录
type ShareRecord struct {
	Worker      string    `json:"worker"`
	JobID       string    `json:"job_id"`
	Extranonce2 string    `json:"extranonce2"`
	NTime       string    `json:"ntime"`
	Nonce       string    `json:"nonce"`
	Difficulty  float64   `json:"difficulty"`
	Accepted    bool      `json:"accepted"`
	RejectCode  int       `json:"reject_code"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// WorkerStats 单个矿工的份额统计
type WorkerStats struct {
	Worker         string     `json:"worker"`
	AcceptedShares int64      `json:"accepted_shares"`
	RejectedShares int64      `json:"rejected_shares"`
	LastShareAt    *time.Time `json:"last_share_at,omitempty"`
}

// Store PostgreSQL 持久层
type Store struct {
	pool *pgxpool.Pool
	sb   sq.StatementBuilderType
}

// New 创建持久层
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// EnsureSchema 应用表结构
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return errors.Wrap(err, "apply schema")
}

// SaveShares 批量写入份额
func (s *Store) SaveShares(ctx context.Context, records []ShareRecord) error {
	if len(records) == 0 {
		return nil
	}

	builder := s.sb.
		Insert("shares").
		Columns("worker", "job_id", "extranonce2", "ntime", "nonce", "difficulty", "accepted", "reject_code", "submitted_at")
	for _, r := range records {
		builder = builder.Values(r.Worker, r.JobID, r.Extranonce2, r.NTime, r.Nonce, r.Difficulty, r.Accepted, r.RejectCode, r.SubmittedAt)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return errors.Wrap(err, "build insert")
	}
	_, err = s.pool.Exec(ctx, query, args...)
	return errors.Wrap(err, "insert shares")
}

// TouchWorker 更新矿工最后活跃时间，矿工不存在时建档
func (s *Store) TouchWorker(ctx context.Context, worker string) error {
	query, args, err := s.sb.
		Insert("workers").
		Columns("name", "last_seen_at").
		Values(worker, time.Now()).
		Suffix("ON CONFLICT (name) DO UPDATE SET last_seen_at = EXCLUDED.last_seen_at").
		ToSql()
	if err != nil {
		return errors.Wrap(err, "build upsert")
	}
	_, err = s.pool.Exec(ctx, query, args...)
	return errors.Wrap(err, "touch worker")
}

// GetWorkerStats 查询矿工份额统计
func (s *Store) GetWorkerStats(ctx context.Context, worker string) (*WorkerStats, error) {
	query, args, err := s.sb.
		Select(
			"COUNT(*) FILTER (WHERE accepted)",
			"COUNT(*) FILTER (WHERE NOT accepted)",
			"MAX(submitted_at)",
		).
		From("shares").
		Where(sq.Eq{"worker": worker}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build stats query")
	}

	stats := &WorkerStats{Worker: worker}
	err = s.pool.QueryRow(ctx, query, args...).Scan(&stats.AcceptedShares, &stats.RejectedShares, &stats.LastShareAt)
	if err != nil {
		return nil, errors.Wrap(err, "query worker stats")
	}
	return stats, nil
}

// ListWorkers 列出已建档矿工
func (s *Store) ListWorkers(ctx context.Context, limit uint64) ([]string, error) {
	query, args, err := s.sb.
		Select("name").
		From("workers").
		OrderBy("last_seen_at DESC NULLS LAST").
		Limit(limit).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build list query")
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list workers")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// PruneShares 删除早于保留期的份额，返回删除行数
func (s *Store) PruneShares(ctx context.Context, retention time.Duration) (int64, error) {
	query, args, err := s.sb.
		Delete("shares").
		Where(sq.Lt{"submitted_at": time.Now().Add(-retention)}).
		ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "build prune")
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, errors.Wrap(err, "prune shares")
	}
	return tag.RowsAffected(), nil
}
