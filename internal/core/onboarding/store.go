package onboarding

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// MutateFunc は現在のケースのコピーを受け取り、書き込むべきケースを返します。
// 競合時に再実行されるため、外部への副作用を持ってはいけません。
type MutateFunc func(current *Case) (*Case, error)

// CaseStore はケース集約の読み書きを楽観ロックで行う唯一の窓口です。
type CaseStore struct {
	state   StateStore
	policy  RetryPolicy
	metrics Metrics
	logger  Logger
}

// NewCaseStore は CaseStore を生成します。
func NewCaseStore(state StateStore, policy RetryPolicy, metrics Metrics, logger Logger) *CaseStore {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &CaseStore{state: state, policy: policy, metrics: metrics, logger: logger}
}

// Create は新しいケースを保存します。同じ ID が既に存在する場合は ErrCaseAlreadyExists を返します。
func (s *CaseStore) Create(ctx context.Context, c *Case) (Version, error) {
	if c == nil || strings.TrimSpace(c.ID) == "" {
		return NoVersion, fmt.Errorf("case id: %w", ErrValidation)
	}

	b, err := encodeCase(c)
	if err != nil {
		return NoVersion, err
	}

	version, err := s.state.Put(ctx, c.ID, b, NoVersion)
	if err != nil {
		return NoVersion, err
	}
	return version, nil
}

// Get はケースを取得します。存在しない場合は ErrCaseNotFound を返します。
func (s *CaseStore) Get(ctx context.Context, caseID string) (*Case, error) {
	if strings.TrimSpace(caseID) == "" {
		return nil, fmt.Errorf("case id: %w", ErrValidation)
	}

	b, version, err := s.state.Get(ctx, caseID)
	if err != nil {
		return nil, err
	}
	return decodeCase(b, version)
}

// ReadModifyWrite はケースを読み込み fn で変換し、読み込み時のバージョンを条件に書き込みます。
// 条件付き書き込みが拒否された場合は再読込から全体をやり直し、試行回数を使い切ると ErrConcurrencyConflict を返します。
func (s *CaseStore) ReadModifyWrite(ctx context.Context, caseID string, fn MutateFunc) (*Case, error) {
	if fn == nil {
		return nil, fmt.Errorf("onboarding: mutate function is required")
	}

	policy := s.policy
	policy.Retryable = func(err error) bool {
		return errors.Is(err, ErrVersionConflict)
	}
	policy.OnRetry = func(attempt int, _ error) {
		s.metrics.ConflictRetried(attempt)
	}

	var written *Case
	err := Retry(ctx, policy, func(ctx context.Context, _ int) error {
		current, err := s.Get(ctx, caseID)
		if err != nil {
			return err
		}

		next, err := fn(current.Clone())
		if err != nil {
			return err
		}
		if next == nil {
			return fmt.Errorf("onboarding: mutate function returned nil case")
		}
		if next.ID != current.ID {
			return fmt.Errorf("case id changed during mutation: %w", ErrValidation)
		}

		b, err := encodeCase(next)
		if err != nil {
			return err
		}

		version, err := s.state.Put(ctx, caseID, b, current.Version)
		if err != nil {
			return err
		}

		next.Version = version
		written = next
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrVersionConflict) {
			s.metrics.ConflictExhausted()
			s.logger.Warn("optimistic retries exhausted", "case_id", caseID)
			return nil, fmt.Errorf("case %s: %w", caseID, ErrConcurrencyConflict)
		}
		return nil, err
	}

	return written, nil
}
