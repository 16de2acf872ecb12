package submit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueWorkflowRejectsMissingWorkflowName(t *testing.T) {
	h, err := EnqueueWorkflow(context.Background(), nil, "", "reg-1", nil, nil)
	require.Error(t, err)
	assert.Nil(t, h)
	assert.ErrorContains(t, err, "workflow_name")
}

func TestEnqueueWorkflowRejectsMissingRegistryID(t *testing.T) {
	h, err := EnqueueWorkflow(context.Background(), nil, "onboarding", "", nil, nil)
	require.Error(t, err)
	assert.Nil(t, h)
	assert.ErrorContains(t, err, "registry_id")
}
