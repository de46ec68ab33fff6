// Package tasks provides the built-in task bodies that job files refer to
// by name.
package tasks

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dagu-org/jobloop/internal/core"
	"github.com/go-viper/mapstructure/v2"
)

// ErrUnknownTask is returned by Lookup for an unregistered name.
var ErrUnknownTask = errors.New("unknown task")

// Definition describes a registered task.
type Definition struct {
	Name        string
	Description string
	Task        core.Task
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Definition)
)

// Register makes task available under name. Registering a name twice
// replaces the earlier task.
func Register(name, description string, task core.Task) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = Definition{Name: name, Description: description, Task: task}
}

// Lookup returns the task registered under name.
func Lookup(name string) (core.Task, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	def, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTask, name)
	}
	return def.Task, nil
}

// List returns all registered tasks sorted by name.
func List() []Definition {
	registryMu.RLock()
	defer registryMu.RUnlock()
	defs := make([]Definition, 0, len(registry))
	for _, def := range registry {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// decodeArgs fills out from the job arguments. A single map argument is
// decoded field by field; a single argument of out's own type is copied.
func decodeArgs[T any](args []any, out *T) error {
	if len(args) == 0 {
		return nil
	}
	if len(args) > 1 {
		return fmt.Errorf("expected one argument, got %d", len(args))
	}
	switch v := args[0].(type) {
	case T:
		*out = v
		return nil
	case *T:
		*out = *v
		return nil
	}

	md, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	if err := md.Decode(args[0]); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}
