package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ogurasousui/codex-onboarding/internal/core/onboarding"
)

const (
	fieldBody    = "body"
	fieldVersion = "version"
)

// CaseStateStore はケース文書を Redis のハッシュ (body, version) として保存するバージョン付きストアです。
type CaseStateStore struct {
	client    goredis.UniversalClient
	keyPrefix string
}

var _ onboarding.StateStore = (*CaseStateStore)(nil)

// NewCaseStateStore は CaseStateStore を生成します。
func NewCaseStateStore(client goredis.UniversalClient, keyPrefix string) *CaseStateStore {
	return &CaseStateStore{client: client, keyPrefix: keyPrefix}
}

func (s *CaseStateStore) redisKey(key string) string {
	return s.keyPrefix + key
}

// Get はケース文書とバージョンを取得します。
func (s *CaseStateStore) Get(ctx context.Context, key string) ([]byte, onboarding.Version, error) {
	fields, err := s.client.HGetAll(ctx, s.redisKey(key)).Result()
	if err != nil {
		return nil, onboarding.NoVersion, fmt.Errorf("redis store: get %s: %w", key, err)
	}
	if len(fields) == 0 {
		return nil, onboarding.NoVersion, onboarding.ErrCaseNotFound
	}

	version, err := parseVersion(fields[fieldVersion])
	if err != nil {
		return nil, onboarding.NoVersion, fmt.Errorf("redis store: %s: %w", key, err)
	}
	return []byte(fields[fieldBody]), version, nil
}

// Put は WATCH による楽観ロックの下で expected と保存済みバージョンを照合し、一致した場合のみ書き込みます。
func (s *CaseStateStore) Put(ctx context.Context, key string, value []byte, expected onboarding.Version) (onboarding.Version, error) {
	rkey := s.redisKey(key)

	var next onboarding.Version
	err := s.client.Watch(ctx, func(tx *goredis.Tx) error {
		raw, err := tx.HGet(ctx, rkey, fieldVersion).Result()
		exists := true
		switch {
		case errors.Is(err, goredis.Nil):
			exists = false
		case err != nil:
			return fmt.Errorf("redis store: read version %s: %w", key, err)
		}

		var current onboarding.Version
		if exists {
			if current, err = parseVersion(raw); err != nil {
				return fmt.Errorf("redis store: %s: %w", key, err)
			}
		}
		if err := checkExpected(exists, current, expected); err != nil {
			return err
		}

		next = current + 1
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.HSet(ctx, rkey, fieldBody, value, fieldVersion, int64(next))
			return nil
		})
		return err
	}, rkey)

	switch {
	case err == nil:
		return next, nil
	case errors.Is(err, goredis.TxFailedErr):
		// WATCH 中に他の書き込みが入った。
		if expected == onboarding.NoVersion {
			return onboarding.NoVersion, onboarding.ErrCaseAlreadyExists
		}
		return onboarding.NoVersion, onboarding.ErrVersionConflict
	case errors.Is(err, onboarding.ErrCaseAlreadyExists), errors.Is(err, onboarding.ErrVersionConflict):
		return onboarding.NoVersion, err
	default:
		return onboarding.NoVersion, fmt.Errorf("redis store: put %s: %w", key, err)
	}
}

func checkExpected(exists bool, current, expected onboarding.Version) error {
	switch {
	case expected == onboarding.NoVersion && exists:
		return onboarding.ErrCaseAlreadyExists
	case expected != onboarding.NoVersion && (!exists || current != expected):
		return onboarding.ErrVersionConflict
	}
	return nil
}

func parseVersion(raw string) (onboarding.Version, error) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return onboarding.NoVersion, fmt.Errorf("invalid version %q: %w", raw, onboarding.ErrCorruptedCaseDocument)
	}
	return onboarding.Version(v), nil
}
