package auth

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// PostgresAuthenticator 数据库名单认证：查 workers 表取密码哈希
type PostgresAuthenticator struct {
	pool *pgxpool.Pool
	sb   sq.StatementBuilderType
}

func NewPostgresAuthenticator(pool *pgxpool.Pool) *PostgresAuthenticator {
	return &PostgresAuthenticator{
		pool: pool,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (a *PostgresAuthenticator) Mode() Mode { return ModePostgres }

func (a *PostgresAuthenticator) Authenticate(ctx context.Context, worker, password string) (*Identity, error) {
	query, args, err := a.sb.
		Select("password_hash").
		From("workers").
		Where(sq.Eq{"name": worker, "enabled": true}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var hash string
	if err := a.pool.QueryRow(ctx, query, args...).Scan(&hash); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	if hash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
			return nil, ErrUnauthorized
		}
	}
	return &Identity{Worker: worker}, nil
}
