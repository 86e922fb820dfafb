package onboarding

import (
	"fmt"
	"testing"
	"time"
)

type sequenceIDs struct {
	prefix string
	next   int
}

func (s *sequenceIDs) NewID() string {
	s.next++
	return fmt.Sprintf("%s-%d", s.prefix, s.next)
}

func TestExpand_OrdersAndDueDates(t *testing.T) {
	t.Parallel()

	templates := []TaskTemplate{
		{Description: "Laptop", TaskType: "it", Order: 2, DueDateOffsetDays: 5},
		{Description: "Contract", TaskType: "hr", Order: 1, DueDateOffsetDays: 0},
	}
	start := time.Date(2026, 1, 10, 15, 30, 0, 0, time.UTC)

	tasks := Expand(templates, start, &sequenceIDs{prefix: "task"})

	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	if tasks[0].Description != "Contract" || tasks[1].Description != "Laptop" {
		t.Fatalf("unexpected order: %s, %s", tasks[0].Description, tasks[1].Description)
	}
	if want := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC); !tasks[0].DueDate.Equal(want) {
		t.Fatalf("expected first due date %v, got %v", want, tasks[0].DueDate)
	}
	if want := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC); !tasks[1].DueDate.Equal(want) {
		t.Fatalf("expected second due date %v, got %v", want, tasks[1].DueDate)
	}
	for _, task := range tasks {
		if task.Status != TaskStatusNotStarted {
			t.Fatalf("expected not_started, got %s", task.Status)
		}
		if task.ID == "" {
			t.Fatalf("expected generated id")
		}
		if task.CompletedDate != nil || task.CompletedBy != nil {
			t.Fatalf("expected no completion data on new task")
		}
	}
	if tasks[0].Order != 1 || tasks[1].Order != 2 {
		t.Fatalf("expected order inherited from template, got %d, %d", tasks[0].Order, tasks[1].Order)
	}
	if tasks[0].TaskType != "hr" {
		t.Fatalf("expected task type inherited from template, got %s", tasks[0].TaskType)
	}
}

func TestExpand_StableForEqualOrder(t *testing.T) {
	t.Parallel()

	templates := []TaskTemplate{
		{Description: "b", Order: 1},
		{Description: "c", Order: 0},
		{Description: "a", Order: 1},
		{Description: "d", Order: 1},
	}

	tasks := Expand(templates, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), nil)

	got := ""
	for _, task := range tasks {
		got += task.Description
	}
	if got != "cbad" {
		t.Fatalf("expected stable order cbad, got %s", got)
	}
	if templates[0].Description != "b" {
		t.Fatalf("input templates must not be reordered")
	}
}

func TestExpand_Deterministic(t *testing.T) {
	t.Parallel()

	templates := []TaskTemplate{
		{Description: "x", Order: 3, DueDateOffsetDays: 2},
		{Description: "y", Order: 1, DueDateOffsetDays: -1},
		{Description: "z", Order: 2, DueDateOffsetDays: 30},
	}
	start := time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC)

	first := Expand(templates, start, nil)
	second := Expand(templates, start, nil)

	for i := range first {
		if first[i].Order != second[i].Order || !first[i].DueDate.Equal(second[i].DueDate) {
			t.Fatalf("expansion differs at %d: %+v vs %+v", i, first[i], second[i])
		}
		if first[i].ID == second[i].ID {
			t.Fatalf("expected fresh identifiers per expansion")
		}
	}
	if want := time.Date(2026, 3, 29, 0, 0, 0, 0, time.UTC); !first[1].DueDate.Equal(want) {
		t.Fatalf("expected due date across month boundary %v, got %v", want, first[1].DueDate)
	}
}

func TestExpand_Empty(t *testing.T) {
	t.Parallel()

	tasks := Expand(nil, time.Now(), nil)
	if tasks == nil || len(tasks) != 0 {
		t.Fatalf("expected empty non-nil task list, got %#v", tasks)
	}
}
