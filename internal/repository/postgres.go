// Package repository содержит хранилище сессий портала в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/ration-portal/internal/session"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresRepository хранит сессии в PostgreSQL и реализует session.Store.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

var _ session.Store = (*PostgresRepository)(nil)

// NewPostgresRepository создаёт пул соединений и применяет миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

var retryDelays = []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i <= len(retryDelays); i++ {
		err = fn()
		if err == nil || !retryable(err) || i == len(retryDelays) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelays[i]):
		}
	}
	return err
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Повторяем только конфликты транзакций и обрывы соединения.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// Get возвращает действующую сессию по идентификатору.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*session.Session, error) {
	var (
		s        session.Session
		userData []byte
		notices  []byte
	)

	err := r.withRetry(ctx, func() error {
		return r.pool.QueryRow(ctx,
			`SELECT id, token, csrf_token, user_data, notices, created_at, expires_at
			 FROM portal_sessions
			 WHERE id = $1 AND expires_at > now()`,
			id,
		).Scan(&s.ID, &s.Token, &s.CSRFToken, &userData, &notices, &s.CreatedAt, &s.ExpiresAt)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, session.ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	if err := json.Unmarshal(userData, &s.User); err != nil {
		return nil, fmt.Errorf("decode session user: %w", err)
	}
	if err := json.Unmarshal(notices, &s.Notices); err != nil {
		return nil, fmt.Errorf("decode session notices: %w", err)
	}

	return &s, nil
}

// Save создаёт или обновляет сессию.
func (r *PostgresRepository) Save(ctx context.Context, s *session.Session) error {
	userData, err := json.Marshal(s.User)
	if err != nil {
		return fmt.Errorf("encode session user: %w", err)
	}

	notices := s.Notices
	if notices == nil {
		notices = []session.Notice{}
	}
	noticesData, err := json.Marshal(notices)
	if err != nil {
		return fmt.Errorf("encode session notices: %w", err)
	}

	err = r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO portal_sessions (id, token, csrf_token, user_data, notices, created_at, expires_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (id) DO UPDATE SET
			   token = EXCLUDED.token,
			   csrf_token = EXCLUDED.csrf_token,
			   user_data = EXCLUDED.user_data,
			   notices = EXCLUDED.notices,
			   expires_at = EXCLUDED.expires_at`,
			s.ID, s.Token, s.CSRFToken, userData, noticesData, s.CreatedAt, s.ExpiresAt,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Delete удаляет сессию.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	err := r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx, `DELETE FROM portal_sessions WHERE id = $1`, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpired удаляет истёкшие сессии и возвращает их количество.
func (r *PostgresRepository) DeleteExpired(ctx context.Context) (int64, error) {
	var n int64
	err := r.withRetry(ctx, func() error {
		tag, err := r.pool.Exec(ctx, `DELETE FROM portal_sessions WHERE expires_at <= now()`)
		if err != nil {
			return err
		}
		n = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return n, nil
}
