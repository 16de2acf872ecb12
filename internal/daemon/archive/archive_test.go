package archive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/daemonflow/daemonflow/internal/daemon/model"
)

func TestRecordFromMapsAllFields(t *testing.T) {
	end := time.Now()
	errMsg := "boom"
	inst := model.DaemonWorkflowInstance{
		ID:           42,
		WorkflowName: "onboarding",
		RegistryID:   "abc123",
		InputBody:    []byte(`{"a":1}`),
		OutputBody:   []byte(`{"b":2}`),
		Status:       model.StatusDone,
		LaunchTime:   end.Add(-time.Minute),
		EndTime:      &end,
		Error:        &errMsg,
	}

	rec := recordFrom(inst)

	assert.Equal(t, int64(42), rec.InstanceID)
	assert.Equal(t, "onboarding", rec.WorkflowName)
	assert.Equal(t, "abc123", rec.RegistryID)
	assert.Equal(t, []byte(`{"a":1}`), rec.InputBody)
	assert.Equal(t, []byte(`{"b":2}`), rec.OutputBody)
	assert.Equal(t, "done", rec.Status)
	assert.Equal(t, &end, rec.EndTime)
	assert.Equal(t, &errMsg, rec.Error)
	assert.WithinDuration(t, time.Now(), rec.ArchivedAt, time.Second)
}

func TestRecordFromNilOptionalFields(t *testing.T) {
	inst := model.DaemonWorkflowInstance{
		ID:           1,
		WorkflowName: "wf",
		RegistryID:   "reg",
		Status:       model.StatusDone,
		LaunchTime:   time.Now(),
	}

	rec := recordFrom(inst)
	assert.Nil(t, rec.EndTime)
	assert.Nil(t, rec.Error)
}
