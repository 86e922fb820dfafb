package onboarding

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StateStore はバージョン付きキーバリューストアの抽象です。
// Get は存在しない場合 ErrCaseNotFound を返します。
// Put は expected が NoVersion のとき新規作成のみを行い、既存キーには ErrCaseAlreadyExists を返します。
// それ以外は保存済みバージョンが expected と一致する場合のみ書き込み、一致しなければ ErrVersionConflict を返します。
type StateStore interface {
	Get(ctx context.Context, key string) ([]byte, Version, error)
	Put(ctx context.Context, key string, value []byte, expected Version) (Version, error)
}

// Publisher はメッセージバスへの発行を抽象化します。
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// EmployeeValidator は社員 ID の存在確認を行う外部サービスです。
// 通信失敗は ErrDependencyUnavailable をラップして返す必要があります。
type EmployeeValidator interface {
	Exists(ctx context.Context, employeeID string) (bool, error)
}

// Clock は現在時刻を提供します。
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

// IDGenerator はケースとタスクの識別子を払い出します。
type IDGenerator interface {
	NewID() string
}

type uuidGenerator struct{}

func (uuidGenerator) NewID() string {
	return uuid.NewString()
}

// Metrics はドメインイベントの計測フックです。
type Metrics interface {
	CaseCreated()
	CaseCompleted()
	ConflictRetried(attempt int)
	ConflictExhausted()
	PublishFailed(topic string)
}

type noopMetrics struct{}

func (noopMetrics) CaseCreated() {}
func (noopMetrics) CaseCompleted() {}
func (noopMetrics) ConflictRetried(int) {}
func (noopMetrics) ConflictExhausted() {}
func (noopMetrics) PublishFailed(string) {}

// Logger はコアが利用する構造化ロガーです。
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type noopLogger struct{}

func (noopLogger) Info(string, ...interface{}) {}
func (noopLogger) Warn(string, ...interface{}) {}
func (noopLogger) Error(string, ...interface{}) {}
