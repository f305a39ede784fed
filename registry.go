// Package vajrapulse is the root of the load-generation engine module: it
// re-exports nothing itself beyond a small task registry used by
// cmd/vajrapulse and embedding callers to look up a named Task
// implementation without hard-coding an import of every task package.
package vajrapulse

import (
	"fmt"
	"sync"
	"time"

	"github.com/99souls/vajrapulse/task"
)

// Factory constructs a fresh Task instance. Registered factories must be
// safe to call repeatedly and concurrently.
type Factory func() task.Task

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{
		"sleep": func() task.Task { return task.SleepTask{Duration: 10 * time.Millisecond} },
	}
)

// RegisterTask adds or replaces a named task factory, for embedding callers
// that want `--task <name>` to resolve to their own workload.
func RegisterTask(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// NewTask constructs a new Task instance for name, or an error if name is
// not registered.
func NewTask(name string) (task.Task, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("vajrapulse: no task registered under name %q", name)
	}
	return factory(), nil
}

// RegisteredTasks returns the names of every currently registered task, for
// help text and diagnostics.
func RegisteredTasks() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
