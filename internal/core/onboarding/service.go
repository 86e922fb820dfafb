package onboarding

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/ogurasousui/codex-onboarding/internal/core/onboarding"

// UseCase はオンボーディングユースケースの公開インターフェースです。
type UseCase interface {
	CreateCase(ctx context.Context, in CreateCaseInput) (*Case, error)
	GetCase(ctx context.Context, in GetCaseInput) (*Case, error)
	UpdateTaskStatus(ctx context.Context, in UpdateTaskStatusInput) (*Case, error)
	CancelCase(ctx context.Context, in CancelCaseInput) (*Case, error)
}

// Service はケース作成とタスク状態更新を取りまとめるワークフローです。
type Service struct {
	store     *CaseStore
	validator EmployeeValidator
	notifier  *Notifier
	templates []TaskTemplate
	clock     Clock
	ids       IDGenerator
	metrics   Metrics
	logger    Logger
	tracer    trace.Tracer
}

// Option は Service の任意依存を差し替えます。
type Option func(*Service)

// WithClock は時刻の取得元を差し替えます。
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithIDGenerator は識別子の払い出し方法を差し替えます。
func WithIDGenerator(ids IDGenerator) Option {
	return func(s *Service) {
		if ids != nil {
			s.ids = ids
		}
	}
}

// WithMetrics は計測フックを設定します。
func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithLogger はロガーを設定します。
func WithLogger(l Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService は Service を生成します。templates は生成時にコピーされ、以後変更されません。
func NewService(store *CaseStore, validator EmployeeValidator, notifier *Notifier, templates []TaskTemplate, opts ...Option) *Service {
	s := &Service{
		store:     store,
		validator: validator,
		notifier:  notifier,
		templates: slices.Clone(templates),
		clock:     realClock{},
		ids:       uuidGenerator{},
		metrics:   noopMetrics{},
		logger:    noopLogger{},
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateCaseInput はケース作成時の入力です。
type CreateCaseInput struct {
	EmployeeID           string
	StartDate            *time.Time
	TargetCompletionDate *time.Time
	Notes                string
}

// GetCaseInput はケース取得時の入力です。
type GetCaseInput struct {
	CaseID string
}

// UpdateTaskStatusInput はタスク状態更新時の入力です。
type UpdateTaskStatusInput struct {
	CaseID      string
	TaskID      string
	Status      TaskStatus
	CompletedBy *string
}

// CancelCaseInput はケース中止時の入力です。
type CancelCaseInput struct {
	CaseID string
}

// CreateCase は社員の存在を確認し、テンプレートを展開した新しいケースを保存します。
func (s *Service) CreateCase(ctx context.Context, in CreateCaseInput) (_ *Case, err error) {
	ctx, span := s.tracer.Start(ctx, "onboarding.CreateCase")
	defer func() { endSpan(span, err) }()

	employeeID := strings.TrimSpace(in.EmployeeID)
	if employeeID == "" {
		return nil, fmt.Errorf("employee_id: %w", ErrValidation)
	}
	if in.StartDate == nil || in.StartDate.IsZero() {
		return nil, fmt.Errorf("start_date: %w", ErrValidation)
	}
	span.SetAttributes(attribute.String("onboarding.employee_id", employeeID))

	exists, err := s.validator.Exists(ctx, employeeID)
	if err != nil {
		if errors.Is(err, ErrDependencyUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}
	if !exists {
		return nil, fmt.Errorf("employee %s: %w", employeeID, ErrInvalidEmployee)
	}

	now := s.clock.Now()
	start := normalizeDate(*in.StartDate)
	tasks := Expand(s.templates, start, s.ids)
	percentage, _ := Derive(tasks)

	var target *time.Time
	if in.TargetCompletionDate != nil {
		t := normalizeDate(*in.TargetCompletionDate)
		target = &t
	}

	c := &Case{
		ID:                   s.ids.NewID(),
		EmployeeID:           employeeID,
		StartDate:            start,
		TargetCompletionDate: target,
		Status:               initialStatus(tasks, now),
		CompletionPercentage: percentage,
		Tasks:                tasks,
		Notes:                strings.TrimSpace(in.Notes),
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	version, err := s.store.Create(ctx, c)
	if err != nil {
		return nil, err
	}
	c.Version = version

	span.SetAttributes(attribute.String("onboarding.case_id", c.ID))
	s.metrics.CaseCreated()
	s.logger.Info("onboarding case created", "case_id", c.ID, "employee_id", employeeID, "tasks", len(tasks), "status", string(c.Status))
	return c, nil
}

// GetCase はケースを取得します。
func (s *Service) GetCase(ctx context.Context, in GetCaseInput) (*Case, error) {
	caseID := strings.TrimSpace(in.CaseID)
	if caseID == "" {
		return nil, fmt.Errorf("case_id: %w", ErrValidation)
	}
	return s.store.Get(ctx, caseID)
}

// UpdateTaskStatus はタスクの状態を更新し、ケースの完了状態を導出し直します。
// ケースが初めて完了した書き込みに限り、完了イベントを 1 回だけ発行します。
func (s *Service) UpdateTaskStatus(ctx context.Context, in UpdateTaskStatusInput) (_ *Case, err error) {
	ctx, span := s.tracer.Start(ctx, "onboarding.UpdateTaskStatus")
	defer func() { endSpan(span, err) }()

	caseID := strings.TrimSpace(in.CaseID)
	if caseID == "" {
		return nil, fmt.Errorf("case_id: %w", ErrValidation)
	}
	taskID := strings.TrimSpace(in.TaskID)
	if taskID == "" {
		return nil, fmt.Errorf("task_id: %w", ErrValidation)
	}
	if !isValidTaskStatus(in.Status) {
		return nil, fmt.Errorf("status %q: %w", in.Status, ErrInvalidStatus)
	}
	span.SetAttributes(
		attribute.String("onboarding.case_id", caseID),
		attribute.String("onboarding.task_id", taskID),
		attribute.String("onboarding.task_status", string(in.Status)),
	)

	// 競合時は mutate が再実行されるため、最後に成功した書き込みの判定だけが残る。
	var completedNow bool
	updated, err := s.store.ReadModifyWrite(ctx, caseID, func(c *Case) (*Case, error) {
		completedNow = false

		if c.Status == CaseStatusCancelled {
			return nil, fmt.Errorf("case %s: %w", c.ID, ErrCaseClosed)
		}

		idx, ok := c.FindTask(taskID)
		if !ok {
			return nil, fmt.Errorf("task %s: %w", taskID, ErrTaskNotFound)
		}

		now := s.clock.Now()
		applyTaskStatus(&c.Tasks[idx], in.Status, in.CompletedBy, now)
		completedNow = applyDerivedStatus(c, now)
		c.UpdatedAt = now
		return c, nil
	})
	if err != nil {
		return nil, err
	}

	if completedNow {
		s.metrics.CaseCompleted()
		s.logger.Info("onboarding case completed", "case_id", updated.ID, "employee_id", updated.EmployeeID)
		if err := s.notifier.NotifyCaseCompleted(ctx, updated); err != nil {
			s.logger.Error("case completed event not published", "case_id", updated.ID, "error", err)
		}
	}

	return updated, nil
}

// CancelCase は未完了のケースを中止します。完了済み・中止済みのケースは ErrCaseClosed です。
func (s *Service) CancelCase(ctx context.Context, in CancelCaseInput) (_ *Case, err error) {
	ctx, span := s.tracer.Start(ctx, "onboarding.CancelCase")
	defer func() { endSpan(span, err) }()

	caseID := strings.TrimSpace(in.CaseID)
	if caseID == "" {
		return nil, fmt.Errorf("case_id: %w", ErrValidation)
	}
	span.SetAttributes(attribute.String("onboarding.case_id", caseID))

	cancelled, err := s.store.ReadModifyWrite(ctx, caseID, func(c *Case) (*Case, error) {
		if c.Status.IsClosed() {
			return nil, fmt.Errorf("case %s is %s: %w", c.ID, c.Status, ErrCaseClosed)
		}
		c.Status = CaseStatusCancelled
		c.UpdatedAt = s.clock.Now()
		return c, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("onboarding case cancelled", "case_id", cancelled.ID)
	return cancelled, nil
}

// initialStatus は期日到来済みのタスクが 1 件でもあれば InProgress、なければ Pending を返します。
func initialStatus(tasks []Task, now time.Time) CaseStatus {
	today := normalizeDate(now)
	for _, t := range tasks {
		if !t.DueDate.After(today) {
			return CaseStatusInProgress
		}
	}
	return CaseStatusPending
}

func applyTaskStatus(t *Task, status TaskStatus, completedBy *string, now time.Time) {
	previous := t.Status
	t.Status = status

	if status != TaskStatusCompleted {
		t.CompletedDate = nil
		t.CompletedBy = nil
		return
	}
	if previous == TaskStatusCompleted {
		return
	}

	completedAt := now
	t.CompletedDate = &completedAt
	t.CompletedBy = cloneString(completedBy)
}

// applyDerivedStatus は完了率とケース状態を導出し直し、この書き込みで初めて完了した場合に true を返します。
func applyDerivedStatus(c *Case, now time.Time) bool {
	wasCompleted := c.Status == CaseStatusCompleted

	percentage, allComplete := Derive(c.Tasks)
	c.CompletionPercentage = percentage

	switch {
	case allComplete && wasCompleted:
		return false
	case allComplete:
		completedAt := now
		c.Status = CaseStatusCompleted
		c.ActualCompletionDate = &completedAt
		return true
	default:
		c.Status = CaseStatusInProgress
		c.ActualCompletionDate = nil
		return false
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
	}
	span.End()
}
