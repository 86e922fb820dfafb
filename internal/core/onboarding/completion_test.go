package onboarding

import "testing"

func tasksWithStatuses(statuses ...TaskStatus) []Task {
	tasks := make([]Task, 0, len(statuses))
	for i, st := range statuses {
		tasks = append(tasks, Task{ID: string(rune('a' + i)), Status: st, Order: i})
	}
	return tasks
}

func completedOf(completed, total int) []Task {
	statuses := make([]TaskStatus, total)
	for i := range statuses {
		if i < completed {
			statuses[i] = TaskStatusCompleted
		} else {
			statuses[i] = TaskStatusInProgress
		}
	}
	return tasksWithStatuses(statuses...)
}

func TestDerive(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		tasks       []Task
		percentage  float64
		allComplete bool
	}{
		{name: "empty", tasks: nil, percentage: 0, allComplete: false},
		{name: "none completed", tasks: completedOf(0, 2), percentage: 0, allComplete: false},
		{name: "one of three", tasks: completedOf(1, 3), percentage: 33.33, allComplete: false},
		{name: "two of three", tasks: completedOf(2, 3), percentage: 66.67, allComplete: false},
		{name: "three of four", tasks: completedOf(3, 4), percentage: 75, allComplete: false},
		{name: "one of six", tasks: completedOf(1, 6), percentage: 16.67, allComplete: false},
		{name: "one of eight", tasks: completedOf(1, 8), percentage: 12.5, allComplete: false},
		{name: "all of four", tasks: completedOf(4, 4), percentage: 100, allComplete: true},
		{name: "single completed", tasks: completedOf(1, 1), percentage: 100, allComplete: true},
		{
			name:        "blocked is not completed",
			tasks:       tasksWithStatuses(TaskStatusCompleted, TaskStatusBlocked),
			percentage:  50,
			allComplete: false,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			pct, all := Derive(tc.tasks)
			if pct != tc.percentage {
				t.Fatalf("expected percentage %v, got %v", tc.percentage, pct)
			}
			if all != tc.allComplete {
				t.Fatalf("expected allComplete %v, got %v", tc.allComplete, all)
			}
		})
	}
}

func TestDerive_AllCompleteOnlyWhenEveryTaskCompleted(t *testing.T) {
	t.Parallel()

	for total := 1; total <= 12; total++ {
		for completed := 0; completed <= total; completed++ {
			pct, all := Derive(completedOf(completed, total))
			if all != (completed == total) {
				t.Fatalf("%d/%d: unexpected allComplete %v", completed, total, all)
			}
			if pct < 0 || pct > 100 {
				t.Fatalf("%d/%d: percentage out of range: %v", completed, total, pct)
			}
			if completed == total && pct != 100 {
				t.Fatalf("%d/%d: expected 100, got %v", completed, total, pct)
			}
		}
	}
}

func TestRoundPercentage_HalfAwayFromZero(t *testing.T) {
	t.Parallel()

	if got := roundPercentage(0.125); got != 0.13 {
		t.Fatalf("expected 0.13, got %v", got)
	}
	if got := roundPercentage(-0.125); got != -0.13 {
		t.Fatalf("expected -0.13, got %v", got)
	}
	if got := roundPercentage(12.5); got != 12.5 {
		t.Fatalf("expected 12.5, got %v", got)
	}
}
