package memory

import (
	"context"
	"sync"

	"github.com/ogurasousui/codex-onboarding/internal/core/onboarding"
)

type entry struct {
	value   []byte
	version onboarding.Version
}

// CaseStateStore はプロセス内で完結するバージョン付きキーバリューストアです。
type CaseStateStore struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewCaseStateStore は空の CaseStateStore を生成します。
func NewCaseStateStore() *CaseStateStore {
	return &CaseStateStore{entries: make(map[string]entry)}
}

// Get はキーに対応する値とバージョンを返します。
func (s *CaseStateStore) Get(ctx context.Context, key string) ([]byte, onboarding.Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, onboarding.NoVersion, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, onboarding.NoVersion, onboarding.ErrCaseNotFound
	}
	return append([]byte(nil), e.value...), e.version, nil
}

// Put は expected と保存済みバージョンが一致する場合のみ値を書き込みます。
func (s *CaseStateStore) Put(ctx context.Context, key string, value []byte, expected onboarding.Version) (onboarding.Version, error) {
	if err := ctx.Err(); err != nil {
		return onboarding.NoVersion, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.entries[key]
	switch {
	case expected == onboarding.NoVersion && exists:
		return onboarding.NoVersion, onboarding.ErrCaseAlreadyExists
	case expected != onboarding.NoVersion && (!exists || current.version != expected):
		return onboarding.NoVersion, onboarding.ErrVersionConflict
	}

	next := current.version + 1
	s.entries[key] = entry{value: append([]byte(nil), value...), version: next}
	return next, nil
}
