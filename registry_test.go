package vajrapulse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/99souls/vajrapulse/task"
)

func TestNewTaskResolvesBuiltinSleep(t *testing.T) {
	tk, err := NewTask("sleep")
	require.NoError(t, err)
	assert.NotNil(t, tk)
}

func TestNewTaskReturnsErrorForUnknownName(t *testing.T) {
	_, err := NewTask("does-not-exist")
	assert.Error(t, err)
}

func TestRegisterTaskAddsNewFactory(t *testing.T) {
	RegisterTask("custom-test-task", func() task.Task { return task.SleepTask{} })
	tk, err := NewTask("custom-test-task")
	require.NoError(t, err)
	assert.IsType(t, task.SleepTask{}, tk)
}

func TestRegisteredTasksIncludesBuiltins(t *testing.T) {
	names := RegisteredTasks()
	assert.Contains(t, names, "sleep")
}
