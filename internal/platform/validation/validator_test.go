package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatorRequired(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"non-empty", "myworkflow", false},
		{"empty", "", true},
		{"whitespace only", "   ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New().Required(tt.value, "workflow_name")
			assert.Equal(t, tt.wantErr, v.HasErrors())
		})
	}
}

func TestValidatorCronExpression(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{"five fields", "0 0 * * *", false},
		{"six fields with seconds", "0 0 0 * * *", false},
		{"too few fields", "* * *", true},
		{"too many fields", "* * * * * * *", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New().CronExpression(tt.expr, "cron_expr")
			assert.Equal(t, tt.wantErr, v.HasErrors())
		})
	}
}

func TestValidatorChainAccumulatesErrors(t *testing.T) {
	v := New().
		Required("", "name").
		Required("", "workflow_name").
		CronExpression("bad", "cron_expr")

	assert.True(t, v.HasErrors())
	assert.Len(t, v.Errors(), 3)
	assert.Contains(t, v.Error(), "name is required")
	assert.Contains(t, v.Error(), "workflow_name is required")
	assert.Contains(t, v.Error(), "cron_expr")
}

func TestValidatorChainNoErrorsWhenValid(t *testing.T) {
	v := New().
		Required("my-workflow", "workflow_name").
		Required("registry-id", "registry_id").
		CronExpression("*/5 * * * *", "cron_expr")

	assert.False(t, v.HasErrors())
	assert.Empty(t, v.Errors())
	assert.Empty(t, v.Error())
}

func TestValidatorUUID(t *testing.T) {
	v := New().UUID("not-a-uuid", "id")
	assert.True(t, v.HasErrors())

	v2 := New().UUID("550e8400-e29b-41d4-a716-446655440000", "id")
	assert.False(t, v2.HasErrors())
}

func TestValidatorOneOf(t *testing.T) {
	v := New().OneOf("queued", []string{"queued", "scheduled", "in_progress", "done"}, "status")
	assert.False(t, v.HasErrors())

	v2 := New().OneOf("bogus", []string{"queued", "scheduled"}, "status")
	assert.True(t, v2.HasErrors())
	assert.Contains(t, v2.Error(), "status must be one of")
}
