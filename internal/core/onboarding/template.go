package onboarding

import (
	"cmp"
	"slices"
	"time"
)

// Expand はテンプレートを order 昇順 (同値は入力順) に並べ、開始日を起点としたタスク一覧へ展開します。
// テンプレートが空の場合は空のタスク一覧を返します。
func Expand(templates []TaskTemplate, startDate time.Time, ids IDGenerator) []Task {
	if ids == nil {
		ids = uuidGenerator{}
	}

	sorted := slices.Clone(templates)
	slices.SortStableFunc(sorted, func(a, b TaskTemplate) int {
		return cmp.Compare(a.Order, b.Order)
	})

	start := normalizeDate(startDate)
	tasks := make([]Task, 0, len(sorted))
	for _, tmpl := range sorted {
		tasks = append(tasks, Task{
			ID:          ids.NewID(),
			Description: tmpl.Description,
			TaskType:    tmpl.TaskType,
			DueDate:     start.AddDate(0, 0, tmpl.DueDateOffsetDays),
			Status:      TaskStatusNotStarted,
			Order:       tmpl.Order,
		})
	}
	return tasks
}
