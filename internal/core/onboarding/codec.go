package onboarding

import (
	"encoding/json"
	"fmt"
	"time"
)

// caseDocument はストアに保存されるケース集約のシリアライズ形式です。バージョンは含みません。
type caseDocument struct {
	ID                   string         `json:"id"`
	EmployeeID           string         `json:"employee_id"`
	StartDate            time.Time      `json:"start_date"`
	TargetCompletionDate *time.Time     `json:"target_completion_date,omitempty"`
	ActualCompletionDate *time.Time     `json:"actual_completion_date,omitempty"`
	Status               CaseStatus     `json:"status"`
	CompletionPercentage float64        `json:"completion_percentage"`
	Tasks                []taskDocument `json:"tasks"`
	Notes                string         `json:"notes,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

type taskDocument struct {
	ID            string     `json:"id"`
	Description   string     `json:"description"`
	TaskType      string     `json:"task_type"`
	Assignee      string     `json:"assignee,omitempty"`
	DueDate       time.Time  `json:"due_date"`
	CompletedDate *time.Time `json:"completed_date,omitempty"`
	CompletedBy   *string    `json:"completed_by,omitempty"`
	Status        TaskStatus `json:"status"`
	Order         int        `json:"order"`
}

func encodeCase(c *Case) ([]byte, error) {
	doc := caseDocument{
		ID:                   c.ID,
		EmployeeID:           c.EmployeeID,
		StartDate:            c.StartDate,
		TargetCompletionDate: c.TargetCompletionDate,
		ActualCompletionDate: c.ActualCompletionDate,
		Status:               c.Status,
		CompletionPercentage: c.CompletionPercentage,
		Tasks:                make([]taskDocument, 0, len(c.Tasks)),
		Notes:                c.Notes,
		CreatedAt:            c.CreatedAt,
		UpdatedAt:            c.UpdatedAt,
	}
	for _, t := range c.Tasks {
		doc.Tasks = append(doc.Tasks, taskDocument{
			ID:            t.ID,
			Description:   t.Description,
			TaskType:      t.TaskType,
			Assignee:      t.Assignee,
			DueDate:       t.DueDate,
			CompletedDate: t.CompletedDate,
			CompletedBy:   t.CompletedBy,
			Status:        t.Status,
			Order:         t.Order,
		})
	}

	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("onboarding: encode case %s: %w", c.ID, err)
	}
	return b, nil
}

func decodeCase(b []byte, version Version) (*Case, error) {
	var doc caseDocument
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedCaseDocument, err)
	}
	if doc.ID == "" || !isValidCaseStatus(doc.Status) {
		return nil, fmt.Errorf("%w: missing id or unknown status %q", ErrCorruptedCaseDocument, doc.Status)
	}

	c := &Case{
		ID:                   doc.ID,
		EmployeeID:           doc.EmployeeID,
		StartDate:            doc.StartDate.UTC(),
		TargetCompletionDate: doc.TargetCompletionDate,
		ActualCompletionDate: doc.ActualCompletionDate,
		Status:               doc.Status,
		CompletionPercentage: doc.CompletionPercentage,
		Tasks:                make([]Task, 0, len(doc.Tasks)),
		Notes:                doc.Notes,
		CreatedAt:            doc.CreatedAt,
		UpdatedAt:            doc.UpdatedAt,
		Version:              version,
	}
	for _, t := range doc.Tasks {
		if !isValidTaskStatus(t.Status) {
			return nil, fmt.Errorf("%w: task %s has unknown status %q", ErrCorruptedCaseDocument, t.ID, t.Status)
		}
		c.Tasks = append(c.Tasks, Task{
			ID:            t.ID,
			Description:   t.Description,
			TaskType:      t.TaskType,
			Assignee:      t.Assignee,
			DueDate:       t.DueDate.UTC(),
			CompletedDate: t.CompletedDate,
			CompletedBy:   t.CompletedBy,
			Status:        t.Status,
			Order:         t.Order,
		})
	}
	return c, nil
}
