package onboarding

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// TopicCaseCompleted はケース完了イベントのトピック名です。
const TopicCaseCompleted = "case-completed"

// CaseCompletedEvent はケース完了時に発行されるペイロードです。
type CaseCompletedEvent struct {
	CaseID      string    `json:"caseId"`
	EmployeeID  string    `json:"employeeId"`
	CompletedAt time.Time `json:"completedAt"`
}

// Notifier はケース完了イベントをメッセージバスへ発行します。
type Notifier struct {
	publisher Publisher
	policy    RetryPolicy
	metrics   Metrics
	logger    Logger
}

// NewNotifier は Notifier を生成します。policy は発行失敗時の再試行に使われます。
func NewNotifier(publisher Publisher, policy RetryPolicy, metrics Metrics, logger Logger) *Notifier {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Notifier{publisher: publisher, policy: policy, metrics: metrics, logger: logger}
}

// NotifyCaseCompleted は完了済みケースについてイベントを 1 件発行します。
func (n *Notifier) NotifyCaseCompleted(ctx context.Context, c *Case) error {
	if n == nil || n.publisher == nil {
		return nil
	}
	if c == nil || c.Status != CaseStatusCompleted || c.ActualCompletionDate == nil {
		return fmt.Errorf("onboarding: case is not completed")
	}

	payload, err := json.Marshal(CaseCompletedEvent{
		CaseID:      c.ID,
		EmployeeID:  c.EmployeeID,
		CompletedAt: *c.ActualCompletionDate,
	})
	if err != nil {
		return fmt.Errorf("onboarding: encode event: %w", err)
	}

	policy := n.policy
	policy.Retryable = nil
	policy.OnRetry = func(attempt int, err error) {
		n.logger.Warn("publish attempt failed", "topic", TopicCaseCompleted, "case_id", c.ID, "attempt", attempt, "error", err)
	}

	if err := Retry(ctx, policy, func(ctx context.Context, _ int) error {
		return n.publisher.Publish(ctx, TopicCaseCompleted, payload)
	}); err != nil {
		n.metrics.PublishFailed(TopicCaseCompleted)
		return fmt.Errorf("onboarding: publish %s: %w", TopicCaseCompleted, err)
	}
	return nil
}
