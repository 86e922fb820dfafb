package onboarding

import "time"

// CaseStatus はオンボーディングケースの状態を表します。
type CaseStatus string

const (
	CaseStatusPending    CaseStatus = "pending"
	CaseStatusInProgress CaseStatus = "in_progress"
	CaseStatusCompleted  CaseStatus = "completed"
	CaseStatusCancelled  CaseStatus = "cancelled"
)

// TaskStatus はオンボーディングタスクの状態を表します。
type TaskStatus string

const (
	TaskStatusNotStarted TaskStatus = "not_started"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusBlocked    TaskStatus = "blocked"
)

// Version はストアが払い出す楽観ロック用のバージョンです。0 は未保存を意味します。
type Version int64

// NoVersion は新規作成時の期待バージョンです。
const NoVersion Version = 0

// TaskTemplate はケース作成時に展開されるタスクの雛形です。起動時に一度だけ読み込まれます。
type TaskTemplate struct {
	Description       string
	TaskType          string
	Order             int
	DueDateOffsetDays int
}

// Task はケースに内包されるオンボーディングタスクです。
type Task struct {
	ID            string
	Description   string
	TaskType      string
	Assignee      string
	DueDate       time.Time
	CompletedDate *time.Time
	CompletedBy   *string
	Status        TaskStatus
	Order         int
}

// Case はタスク一覧を内包するオンボーディングケース集約です。
type Case struct {
	ID                   string
	EmployeeID           string
	StartDate            time.Time
	TargetCompletionDate *time.Time
	ActualCompletionDate *time.Time
	Status               CaseStatus
	CompletionPercentage float64
	Tasks                []Task
	Notes                string
	CreatedAt            time.Time
	UpdatedAt            time.Time
	Version              Version
}

// IsClosed は終端状態かどうかを返します。
func (s CaseStatus) IsClosed() bool {
	return s == CaseStatusCompleted || s == CaseStatusCancelled
}

// FindTask は ID に一致するタスクの添字を返します。
func (c *Case) FindTask(taskID string) (int, bool) {
	for i := range c.Tasks {
		if c.Tasks[i].ID == taskID {
			return i, true
		}
	}
	return -1, false
}

// Clone はケースとタスクの深いコピーを返します。
func (c *Case) Clone() *Case {
	if c == nil {
		return nil
	}
	clone := *c
	clone.TargetCompletionDate = cloneTime(c.TargetCompletionDate)
	clone.ActualCompletionDate = cloneTime(c.ActualCompletionDate)
	if c.Tasks != nil {
		clone.Tasks = make([]Task, len(c.Tasks))
		for i, t := range c.Tasks {
			t.CompletedDate = cloneTime(t.CompletedDate)
			t.CompletedBy = cloneString(t.CompletedBy)
			clone.Tasks[i] = t
		}
	}
	return &clone
}

func isValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusNotStarted, TaskStatusInProgress, TaskStatusCompleted, TaskStatusBlocked:
		return true
	default:
		return false
	}
}

func isValidCaseStatus(status CaseStatus) bool {
	switch status {
	case CaseStatusPending, CaseStatusInProgress, CaseStatusCompleted, CaseStatusCancelled:
		return true
	default:
		return false
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	clone := *s
	return &clone
}

func normalizeDate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
