package onboarding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type stubClock struct {
	mu  sync.Mutex
	now time.Time
}

func (s *stubClock) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *stubClock) advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = s.now.Add(d)
}

type stubValidator struct {
	known map[string]bool
	err   error
	calls int
}

func (v *stubValidator) Exists(_ context.Context, employeeID string) (bool, error) {
	v.calls++
	if v.err != nil {
		return false, v.err
	}
	return v.known[employeeID], nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []CaseCompletedEvent
	topics   []string
	failures int
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return errors.New("bus unavailable")
	}
	var evt CaseCompletedEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return err
	}
	p.topics = append(p.topics, topic)
	p.messages = append(p.messages, evt)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

type serviceFixture struct {
	svc       *Service
	state     *fakeStateStore
	store     *CaseStore
	clock     *stubClock
	validator *stubValidator
	publisher *recordingPublisher
	metrics   *countingMetrics
}

func newServiceFixture(t *testing.T, templates []TaskTemplate) *serviceFixture {
	t.Helper()

	f := &serviceFixture{
		state:     newFakeStateStore(),
		clock:     &stubClock{now: time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)},
		validator: &stubValidator{known: map[string]bool{"emp-1": true}},
		publisher: &recordingPublisher{},
		metrics:   &countingMetrics{},
	}
	policy := RetryPolicy{MaxAttempts: 50, BaseDelay: time.Millisecond, MaxDelay: 3 * time.Millisecond}
	f.store = NewCaseStore(f.state, policy, f.metrics, nil)
	notifier := NewNotifier(f.publisher, fastPolicy(3), f.metrics, nil)
	f.svc = NewService(f.store, f.validator, notifier, templates,
		WithClock(f.clock),
		WithMetrics(f.metrics),
	)
	return f
}

func fourTemplates() []TaskTemplate {
	return []TaskTemplate{
		{Description: "Sign contract", TaskType: "hr", Order: 1, DueDateOffsetDays: 0},
		{Description: "Provision laptop", TaskType: "it", Order: 2, DueDateOffsetDays: 1},
		{Description: "Create accounts", TaskType: "it", Order: 3, DueDateOffsetDays: 2},
		{Description: "Meet buddy", TaskType: "team", Order: 4, DueDateOffsetDays: 5},
	}
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func (f *serviceFixture) createCase(t *testing.T) *Case {
	t.Helper()
	c, err := f.svc.CreateCase(context.Background(), CreateCaseInput{
		EmployeeID: "emp-1",
		StartDate:  datePtr(2026, 1, 10),
	})
	if err != nil {
		t.Fatalf("CreateCase returned error: %v", err)
	}
	return c
}

func (f *serviceFixture) setStatus(t *testing.T, caseID, taskID string, status TaskStatus) *Case {
	t.Helper()
	c, err := f.svc.UpdateTaskStatus(context.Background(), UpdateTaskStatusInput{CaseID: caseID, TaskID: taskID, Status: status})
	if err != nil {
		t.Fatalf("UpdateTaskStatus(%s -> %s) returned error: %v", taskID, status, err)
	}
	return c
}

func TestService_CreateCase_ExpandsTemplates(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, []TaskTemplate{
		{Description: "second", Order: 2, DueDateOffsetDays: 5},
		{Description: "first", Order: 1, DueDateOffsetDays: 0},
	})

	created, err := f.svc.CreateCase(context.Background(), CreateCaseInput{
		EmployeeID: " emp-1 ",
		StartDate:  datePtr(2026, 1, 10),
		Notes:      "  remote hire ",
	})
	if err != nil {
		t.Fatalf("CreateCase returned error: %v", err)
	}

	if created.EmployeeID != "emp-1" {
		t.Fatalf("expected trimmed employee id, got %q", created.EmployeeID)
	}
	if len(created.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(created.Tasks))
	}
	if !created.Tasks[0].DueDate.Equal(*datePtr(2026, 1, 10)) || !created.Tasks[1].DueDate.Equal(*datePtr(2026, 1, 15)) {
		t.Fatalf("unexpected due dates: %v, %v", created.Tasks[0].DueDate, created.Tasks[1].DueDate)
	}
	if created.Status != CaseStatusPending {
		t.Fatalf("expected pending before any task is due, got %s", created.Status)
	}
	if created.CompletionPercentage != 0 {
		t.Fatalf("expected 0%% completion, got %v", created.CompletionPercentage)
	}
	if created.Notes != "remote hire" {
		t.Fatalf("expected trimmed notes, got %q", created.Notes)
	}
	if created.Version == NoVersion {
		t.Fatalf("expected persisted version")
	}
	if !created.CreatedAt.Equal(f.clock.Now()) {
		t.Fatalf("expected timestamps from clock")
	}

	stored, err := f.svc.GetCase(context.Background(), GetCaseInput{CaseID: created.ID})
	if err != nil {
		t.Fatalf("GetCase returned error: %v", err)
	}
	if stored.Version != created.Version || len(stored.Tasks) != 2 {
		t.Fatalf("stored case differs from created: %+v", stored)
	}
	if f.metrics.created != 1 {
		t.Fatalf("expected created metric, got %d", f.metrics.created)
	}
}

func TestService_CreateCase_InProgressWhenTaskAlreadyDue(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, fourTemplates())
	f.clock.now = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	created := f.createCase(t)
	if created.Status != CaseStatusInProgress {
		t.Fatalf("expected in_progress when a task is due on the processing date, got %s", created.Status)
	}
}

func TestService_CreateCase_EmptyTemplates(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, nil)
	created := f.createCase(t)

	if len(created.Tasks) != 0 || created.CompletionPercentage != 0 || created.Status != CaseStatusPending {
		t.Fatalf("unexpected empty case: %+v", created)
	}
}

func TestService_CreateCase_ValidationErrors(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, fourTemplates())

	cases := []struct {
		name string
		in   CreateCaseInput
	}{
		{name: "empty employee", in: CreateCaseInput{EmployeeID: "  ", StartDate: datePtr(2026, 1, 10)}},
		{name: "missing start date", in: CreateCaseInput{EmployeeID: "emp-1"}},
		{name: "zero start date", in: CreateCaseInput{EmployeeID: "emp-1", StartDate: &time.Time{}}},
	}

	for _, tc := range cases {
		if _, err := f.svc.CreateCase(context.Background(), tc.in); !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: expected ErrValidation, got %v", tc.name, err)
		}
	}
	if f.validator.calls != 0 {
		t.Fatalf("validator must not be called for malformed input")
	}
}

func TestService_CreateCase_InvalidEmployee(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, fourTemplates())

	_, err := f.svc.CreateCase(context.Background(), CreateCaseInput{EmployeeID: "emp-404", StartDate: datePtr(2026, 1, 10)})
	if !errors.Is(err, ErrInvalidEmployee) {
		t.Fatalf("expected ErrInvalidEmployee, got %v", err)
	}
	if f.state.puts != 0 {
		t.Fatalf("expected no case persisted, got %d writes", f.state.puts)
	}
}

func TestService_CreateCase_DependencyUnavailable(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, fourTemplates())
	f.validator.err = errors.New("dial tcp: connection refused")

	_, err := f.svc.CreateCase(context.Background(), CreateCaseInput{EmployeeID: "emp-1", StartDate: datePtr(2026, 1, 10)})
	if !errors.Is(err, ErrDependencyUnavailable) {
		t.Fatalf("expected ErrDependencyUnavailable, got %v", err)
	}
	if errors.Is(err, ErrInvalidEmployee) {
		t.Fatalf("transport failure must not be reported as invalid employee")
	}
	if f.state.puts != 0 {
		t.Fatalf("expected no case persisted")
	}
}

func TestService_UpdateTaskStatus_ThreeOfFour(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, fourTemplates())
	c := f.createCase(t)

	var updated *Case
	for _, task := range c.Tasks[:3] {
		updated = f.setStatus(t, c.ID, task.ID, TaskStatusCompleted)
	}

	if updated.CompletionPercentage != 75 {
		t.Fatalf("expected 75%%, got %v", updated.CompletionPercentage)
	}
	if updated.Status != CaseStatusInProgress {
		t.Fatalf("expected in_progress, got %s", updated.Status)
	}
	if updated.ActualCompletionDate != nil {
		t.Fatalf("expected no completion date")
	}
	if f.publisher.count() != 0 {
		t.Fatalf("expected no event before completion")
	}
}

func TestService_UpdateTaskStatus_CompletesCaseAndPublishesOnce(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, fourTemplates())
	c := f.createCase(t)
	for _, task := range c.Tasks[:3] {
		f.setStatus(t, c.ID, task.ID, TaskStatusCompleted)
	}

	f.clock.advance(time.Hour)
	by := "manager-7"
	updated, err := f.svc.UpdateTaskStatus(context.Background(), UpdateTaskStatusInput{
		CaseID:      c.ID,
		TaskID:      c.Tasks[3].ID,
		Status:      TaskStatusCompleted,
		CompletedBy: &by,
	})
	if err != nil {
		t.Fatalf("UpdateTaskStatus returned error: %v", err)
	}

	if updated.CompletionPercentage != 100 {
		t.Fatalf("expected 100%%, got %v", updated.CompletionPercentage)
	}
	if updated.Status != CaseStatusCompleted {
		t.Fatalf("expected completed, got %s", updated.Status)
	}
	if updated.ActualCompletionDate == nil || !updated.ActualCompletionDate.Equal(f.clock.Now()) {
		t.Fatalf("expected actual completion date at clock now, got %v", updated.ActualCompletionDate)
	}
	last := updated.Tasks[3]
	if last.CompletedBy == nil || *last.CompletedBy != "manager-7" || last.CompletedDate == nil {
		t.Fatalf("expected completion data on task, got %+v", last)
	}

	if f.publisher.count() != 1 {
		t.Fatalf("expected exactly one event, got %d", f.publisher.count())
	}
	evt := f.publisher.messages[0]
	if f.publisher.topics[0] != TopicCaseCompleted || evt.CaseID != c.ID || evt.EmployeeID != "emp-1" || !evt.CompletedAt.Equal(*updated.ActualCompletionDate) {
		t.Fatalf("unexpected event: %s %+v", f.publisher.topics[0], evt)
	}
	if f.metrics.completed != 1 {
		t.Fatalf("expected completed metric once, got %d", f.metrics.completed)
	}

	// 完了済みタスクの再完了はケースの完了日時を上書きしない。
	f.clock.advance(time.Hour)
	again := f.setStatus(t, c.ID, c.Tasks[3].ID, TaskStatusCompleted)
	if !again.ActualCompletionDate.Equal(*updated.ActualCompletionDate) {
		t.Fatalf("actual completion date must not be overwritten")
	}
	if !again.Tasks[3].CompletedDate.Equal(*last.CompletedDate) {
		t.Fatalf("task completed date must not be overwritten")
	}
	if f.publisher.count() != 1 {
		t.Fatalf("expected no second event, got %d", f.publisher.count())
	}
}

func TestService_UpdateTaskStatus_ReopenRevertsCompletion(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, fourTemplates())
	c := f.createCase(t)
	for _, task := range c.Tasks {
		f.setStatus(t, c.ID, task.ID, TaskStatusCompleted)
	}

	reopened := f.setStatus(t, c.ID, c.Tasks[1].ID, TaskStatusInProgress)
	if reopened.Status != CaseStatusInProgress {
		t.Fatalf("expected in_progress after reopen, got %s", reopened.Status)
	}
	if reopened.ActualCompletionDate != nil {
		t.Fatalf("expected actual completion date cleared")
	}
	if reopened.CompletionPercentage != 75 {
		t.Fatalf("expected 75%%, got %v", reopened.CompletionPercentage)
	}
	if task := reopened.Tasks[1]; task.CompletedDate != nil || task.CompletedBy != nil {
		t.Fatalf("expected completion data cleared on reopened task, got %+v", task)
	}

	// 再度完了させると新しい遷移として扱われる。
	recompleted := f.setStatus(t, c.ID, c.Tasks[1].ID, TaskStatusCompleted)
	if recompleted.Status != CaseStatusCompleted || recompleted.ActualCompletionDate == nil {
		t.Fatalf("expected case completed again, got %+v", recompleted)
	}
	if f.publisher.count() != 2 {
		t.Fatalf("expected one event per completion transition, got %d", f.publisher.count())
	}
}

func TestService_UpdateTaskStatus_Errors(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, fourTemplates())
	c := f.createCase(t)

	cases := []struct {
		name string
		in   UpdateTaskStatusInput
		want error
	}{
		{name: "missing case id", in: UpdateTaskStatusInput{TaskID: "x", Status: TaskStatusCompleted}, want: ErrValidation},
		{name: "missing task id", in: UpdateTaskStatusInput{CaseID: c.ID, Status: TaskStatusCompleted}, want: ErrValidation},
		{name: "invalid status", in: UpdateTaskStatusInput{CaseID: c.ID, TaskID: c.Tasks[0].ID, Status: "done"}, want: ErrInvalidStatus},
		{name: "unknown case", in: UpdateTaskStatusInput{CaseID: "missing", TaskID: c.Tasks[0].ID, Status: TaskStatusCompleted}, want: ErrCaseNotFound},
		{name: "unknown task", in: UpdateTaskStatusInput{CaseID: c.ID, TaskID: "missing", Status: TaskStatusCompleted}, want: ErrTaskNotFound},
	}

	for _, tc := range cases {
		if _, err := f.svc.UpdateTaskStatus(context.Background(), tc.in); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestService_CancelCase(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, fourTemplates())
	c := f.createCase(t)
	f.setStatus(t, c.ID, c.Tasks[0].ID, TaskStatusInProgress)

	cancelled, err := f.svc.CancelCase(context.Background(), CancelCaseInput{CaseID: c.ID})
	if err != nil {
		t.Fatalf("CancelCase returned error: %v", err)
	}
	if cancelled.Status != CaseStatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}

	_, err = f.svc.UpdateTaskStatus(context.Background(), UpdateTaskStatusInput{CaseID: c.ID, TaskID: c.Tasks[0].ID, Status: TaskStatusCompleted})
	if !errors.Is(err, ErrCaseClosed) {
		t.Fatalf("expected ErrCaseClosed on cancelled case, got %v", err)
	}

	if _, err := f.svc.CancelCase(context.Background(), CancelCaseInput{CaseID: c.ID}); !errors.Is(err, ErrCaseClosed) {
		t.Fatalf("expected ErrCaseClosed on second cancel, got %v", err)
	}
}

func TestService_CancelCase_CompletedIsClosed(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, fourTemplates()[:1])
	c := f.createCase(t)
	f.setStatus(t, c.ID, c.Tasks[0].ID, TaskStatusCompleted)

	if _, err := f.svc.CancelCase(context.Background(), CancelCaseInput{CaseID: c.ID}); !errors.Is(err, ErrCaseClosed) {
		t.Fatalf("expected ErrCaseClosed, got %v", err)
	}
}

func TestService_UpdateTaskStatus_InterleavedWritesAreNotLost(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, fourTemplates())
	c := f.createCase(t)

	interleaved := false
	f.state.beforePut = func(string, int) {
		if interleaved {
			return
		}
		interleaved = true
		f.setStatus(t, c.ID, c.Tasks[1].ID, TaskStatusBlocked)
	}

	updated := f.setStatus(t, c.ID, c.Tasks[0].ID, TaskStatusCompleted)

	if updated.Tasks[0].Status != TaskStatusCompleted || updated.Tasks[1].Status != TaskStatusBlocked {
		t.Fatalf("expected both updates applied, got %s and %s", updated.Tasks[0].Status, updated.Tasks[1].Status)
	}
	if f.state.rejected != 1 {
		t.Fatalf("expected exactly one rejected conditional write, got %d", f.state.rejected)
	}
	if updated.CompletionPercentage != 25 {
		t.Fatalf("expected 25%%, got %v", updated.CompletionPercentage)
	}
}

func TestService_UpdateTaskStatus_CompletionRetriedPublishesOnce(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, fourTemplates()[:2])
	c := f.createCase(t)
	f.setStatus(t, c.ID, c.Tasks[0].ID, TaskStatusCompleted)

	// 完了を確定させる書き込みの直前に無関係な書き込みを割り込ませ、内部リトライを発生させる。
	interleaved := false
	f.state.beforePut = func(string, int) {
		if interleaved {
			return
		}
		interleaved = true
		f.setStatus(t, c.ID, c.Tasks[0].ID, TaskStatusCompleted)
	}

	updated := f.setStatus(t, c.ID, c.Tasks[1].ID, TaskStatusCompleted)

	if updated.Status != CaseStatusCompleted {
		t.Fatalf("expected completed, got %s", updated.Status)
	}
	if f.state.rejected != 1 {
		t.Fatalf("expected the completing write to be retried once, got %d rejections", f.state.rejected)
	}
	if f.publisher.count() != 1 {
		t.Fatalf("expected exactly one event, got %d", f.publisher.count())
	}
	if f.metrics.completed != 1 {
		t.Fatalf("expected one completion, got %d", f.metrics.completed)
	}
}

func TestService_UpdateTaskStatus_CompletionDecisionRecomputedOnRetry(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, fourTemplates()[:2])
	c := f.createCase(t)
	f.setStatus(t, c.ID, c.Tasks[0].ID, TaskStatusCompleted)

	// 完了になるはずだった書き込みの直前にタスク 0 を差し戻す。再読込後の判定では未完了になる。
	interleaved := false
	f.state.beforePut = func(string, int) {
		if interleaved {
			return
		}
		interleaved = true
		f.setStatus(t, c.ID, c.Tasks[0].ID, TaskStatusInProgress)
	}

	updated := f.setStatus(t, c.ID, c.Tasks[1].ID, TaskStatusCompleted)

	if f.state.rejected != 1 {
		t.Fatalf("expected the write to be retried once, got %d rejections", f.state.rejected)
	}
	if updated.Status != CaseStatusInProgress {
		t.Fatalf("expected in_progress after retry, got %s", updated.Status)
	}
	if updated.ActualCompletionDate != nil {
		t.Fatalf("expected no completion date, got %v", updated.ActualCompletionDate)
	}
	if updated.Tasks[0].Status != TaskStatusInProgress || updated.Tasks[1].Status != TaskStatusCompleted {
		t.Fatalf("unexpected task states: %s, %s", updated.Tasks[0].Status, updated.Tasks[1].Status)
	}
	if updated.CompletionPercentage != 50 {
		t.Fatalf("expected 50%%, got %v", updated.CompletionPercentage)
	}
	if f.publisher.count() != 0 {
		t.Fatalf("expected no event, got %d", f.publisher.count())
	}
	if f.metrics.completed != 0 {
		t.Fatalf("expected no completion, got %d", f.metrics.completed)
	}
}

func TestService_UpdateTaskStatus_ConcurrentUpdates(t *testing.T) {
	t.Parallel()

	templates := make([]TaskTemplate, 0, 8)
	for i := 0; i < 8; i++ {
		templates = append(templates, TaskTemplate{Description: fmt.Sprintf("task %d", i), Order: i})
	}
	f := newServiceFixture(t, templates)
	c := f.createCase(t)

	var wg sync.WaitGroup
	errs := make(chan error, len(c.Tasks))
	for _, task := range c.Tasks {
		wg.Add(1)
		go func(taskID string) {
			defer wg.Done()
			_, err := f.svc.UpdateTaskStatus(context.Background(), UpdateTaskStatusInput{CaseID: c.ID, TaskID: taskID, Status: TaskStatusCompleted})
			errs <- err
		}(task.ID)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent update failed: %v", err)
		}
	}

	final, err := f.svc.GetCase(context.Background(), GetCaseInput{CaseID: c.ID})
	if err != nil {
		t.Fatalf("GetCase returned error: %v", err)
	}
	for _, task := range final.Tasks {
		if task.Status != TaskStatusCompleted {
			t.Fatalf("lost update on task %s: %s", task.ID, task.Status)
		}
	}
	if final.Status != CaseStatusCompleted || final.CompletionPercentage != 100 {
		t.Fatalf("expected completed case, got %s %v", final.Status, final.CompletionPercentage)
	}
	if f.publisher.count() != 1 {
		t.Fatalf("expected exactly one event across concurrent writers, got %d", f.publisher.count())
	}
}

func TestService_UpdateTaskStatus_PublishFailureKeepsWrite(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, fourTemplates()[:1])
	f.publisher.failures = 10
	c := f.createCase(t)

	updated, err := f.svc.UpdateTaskStatus(context.Background(), UpdateTaskStatusInput{CaseID: c.ID, TaskID: c.Tasks[0].ID, Status: TaskStatusCompleted})
	if err != nil {
		t.Fatalf("publish failure must not fail the request: %v", err)
	}
	if updated.Status != CaseStatusCompleted {
		t.Fatalf("expected completed, got %s", updated.Status)
	}
	if f.metrics.publishes != 1 {
		t.Fatalf("expected one publish failure recorded, got %d", f.metrics.publishes)
	}

	stored, err := f.svc.GetCase(context.Background(), GetCaseInput{CaseID: c.ID})
	if err != nil {
		t.Fatalf("GetCase returned error: %v", err)
	}
	if stored.Status != CaseStatusCompleted {
		t.Fatalf("write must not be rolled back, got %s", stored.Status)
	}
}

func TestService_UpdateTaskStatus_PublishRetriedOnTransientFailure(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, fourTemplates()[:1])
	f.publisher.failures = 2
	c := f.createCase(t)

	f.setStatus(t, c.ID, c.Tasks[0].ID, TaskStatusCompleted)

	if f.publisher.count() != 1 {
		t.Fatalf("expected event delivered after retries, got %d", f.publisher.count())
	}
	if f.metrics.publishes != 0 {
		t.Fatalf("expected no publish failure recorded, got %d", f.metrics.publishes)
	}
}
