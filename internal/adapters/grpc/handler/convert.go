package handler

import (
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ogurasousui/codex-onboarding/internal/core/onboarding"
)

const dateLayout = "2006-01-02"

func stringField(req *structpb.Struct, name string) string {
	v, ok := req.GetFields()[name]
	if !ok {
		return ""
	}
	return v.GetStringValue()
}

// optionalStringField は未指定・null を nil とし、文字列以外の値はエラーにします。
func optionalStringField(req *structpb.Struct, name string) (*string, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return nil, nil
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_NullValue:
		return nil, nil
	case *structpb.Value_StringValue:
		s := kind.StringValue
		return &s, nil
	default:
		return nil, fmt.Errorf("%s must be a string", name)
	}
}

func dateField(req *structpb.Struct, name string) (*time.Time, error) {
	raw := strings.TrimSpace(stringField(req, name))
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be formatted as YYYY-MM-DD", name)
	}
	return &t, nil
}

func toCreateCaseInput(req *structpb.Struct) (onboarding.CreateCaseInput, error) {
	start, err := dateField(req, "start_date")
	if err != nil {
		return onboarding.CreateCaseInput{}, err
	}
	target, err := dateField(req, "target_completion_date")
	if err != nil {
		return onboarding.CreateCaseInput{}, err
	}
	return onboarding.CreateCaseInput{
		EmployeeID:           stringField(req, "employee_id"),
		StartDate:            start,
		TargetCompletionDate: target,
		Notes:                stringField(req, "notes"),
	}, nil
}

func toCaseResponse(c *onboarding.Case) (*structpb.Struct, error) {
	resp, err := structpb.NewStruct(map[string]interface{}{"case": toCaseMap(c)})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return resp, nil
}

func toCaseMap(c *onboarding.Case) map[string]interface{} {
	tasks := make([]interface{}, 0, len(c.Tasks))
	for _, t := range c.Tasks {
		tasks = append(tasks, toTaskMap(t))
	}

	return map[string]interface{}{
		"id":                     c.ID,
		"employee_id":            c.EmployeeID,
		"start_date":             c.StartDate.Format(dateLayout),
		"target_completion_date": formatOptionalDate(c.TargetCompletionDate),
		"actual_completion_date": formatOptionalTimestamp(c.ActualCompletionDate),
		"status":                 string(c.Status),
		"completion_percentage":  c.CompletionPercentage,
		"tasks":                  tasks,
		"notes":                  c.Notes,
		"created_at":             c.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":             c.UpdatedAt.UTC().Format(time.RFC3339Nano),
		"version":                float64(c.Version),
	}
}

func toTaskMap(t onboarding.Task) map[string]interface{} {
	var completedBy interface{}
	if t.CompletedBy != nil {
		completedBy = *t.CompletedBy
	}
	return map[string]interface{}{
		"id":             t.ID,
		"description":    t.Description,
		"task_type":      t.TaskType,
		"assignee":       t.Assignee,
		"due_date":       t.DueDate.Format(dateLayout),
		"completed_date": formatOptionalTimestamp(t.CompletedDate),
		"completed_by":   completedBy,
		"status":         string(t.Status),
		"order":          float64(t.Order),
	}
}

func formatOptionalDate(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}

func formatOptionalTimestamp(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
