package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ogurasousui/codex-onboarding/internal/core/onboarding"
	pgdb "github.com/ogurasousui/codex-onboarding/internal/platform/db/postgres"
)

const caseUniqueViolationCode = "23505"

const (
	selectCaseSQL = `
        SELECT body, version
          FROM onboarding_cases
         WHERE id = $1
    `
	insertCaseSQL = `
        INSERT INTO onboarding_cases (id, body, version, created_at, updated_at)
        VALUES ($1, $2, 1, now(), now())
        RETURNING version
    `
	updateCaseSQL = `
        UPDATE onboarding_cases
           SET body = $2,
               version = version + 1,
               updated_at = now()
         WHERE id = $1 AND version = $3
        RETURNING version
    `
)

// CaseStateStore は PostgreSQL の 1 行をケース集約 1 件として扱うバージョン付きストアです。
type CaseStateStore struct {
	pool pgdb.Queryer
}

// NewCaseStateStore は CaseStateStore を生成します。
func NewCaseStateStore(pool pgdb.Queryer) *CaseStateStore {
	return &CaseStateStore{pool: pool}
}

// Get はケース文書とバージョンを取得します。
func (s *CaseStateStore) Get(ctx context.Context, key string) ([]byte, onboarding.Version, error) {
	var (
		body    []byte
		version int64
	)
	if err := s.pool.QueryRow(ctx, selectCaseSQL, key).Scan(&body, &version); err != nil {
		return nil, onboarding.NoVersion, translateCasePgError(err, onboarding.ErrCaseNotFound)
	}
	return body, onboarding.Version(version), nil
}

// Put は expected が NoVersion なら INSERT、それ以外はバージョン一致を条件に UPDATE します。
func (s *CaseStateStore) Put(ctx context.Context, key string, value []byte, expected onboarding.Version) (onboarding.Version, error) {
	var version int64

	if expected == onboarding.NoVersion {
		if err := s.pool.QueryRow(ctx, insertCaseSQL, key, value).Scan(&version); err != nil {
			return onboarding.NoVersion, translateCasePgError(err, onboarding.ErrCaseAlreadyExists)
		}
		return onboarding.Version(version), nil
	}

	// 0 行更新は他の書き込みによるバージョン前進 (または削除) を意味する。
	if err := s.pool.QueryRow(ctx, updateCaseSQL, key, value, int64(expected)).Scan(&version); err != nil {
		return onboarding.NoVersion, translateCasePgError(err, onboarding.ErrVersionConflict)
	}
	return onboarding.Version(version), nil
}

func translateCasePgError(err error, noRows error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return noRows
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == caseUniqueViolationCode {
		return onboarding.ErrCaseAlreadyExists
	}

	return fmt.Errorf("postgres: onboarding case: %w", err)
}
