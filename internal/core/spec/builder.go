package spec

import (
	"errors"
	"fmt"
	"os"
	"time"

	"dario.cat/mergo"
	"github.com/dagu-org/jobloop/internal/core"
)

// builder turns job definitions into jobs. Dependencies are shared by name,
// so a job referenced by several dependents is built once.
type builder struct {
	opts     LoadOptions
	defaults *jobDefinition
	defs     map[string]*jobDefinition
	jobs     map[string]*core.Job
	visiting map[string]bool
}

// register applies the defaults to jd, names it and records it together with
// its inline dependencies. Inline dependencies are replaced by their names.
func (b *builder) register(jd *jobDefinition) error {
	if jd == nil {
		return errors.New("empty job definition")
	}
	if err := b.applyDefaults(jd); err != nil {
		return err
	}
	if jd.Name == "" {
		jd.Name = jd.Task
	}
	if jd.Name == "" {
		return errors.New("job without name or task")
	}
	if _, ok := b.defs[jd.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateName, jd.Name)
	}
	b.defs[jd.Name] = jd

	for i, dep := range jd.Dependencies {
		switch v := dep.(type) {
		case string:
			// Resolved in build, after every job has been registered.
		case map[string]any:
			inline := new(jobDefinition)
			if err := decodeInto(v, inline); err != nil {
				return fmt.Errorf("job %s: invalid dependency: %w", jd.Name, err)
			}
			if err := b.register(inline); err != nil {
				return err
			}
			jd.Dependencies[i] = inline.Name
		default:
			return fmt.Errorf("job %s: dependency must be a name or a job, got %T", jd.Name, dep)
		}
	}
	return nil
}

func (b *builder) applyDefaults(jd *jobDefinition) error {
	if b.defaults == nil {
		return nil
	}
	defaults := *b.defaults
	defaults.Name = ""
	defaults.Dependencies = nil
	// Without dereferencing, an explicit "tries: 0" is kept.
	if err := mergo.Merge(jd, &defaults, mergo.WithoutDereference); err != nil {
		return fmt.Errorf("failed to apply defaults: %w", err)
	}
	return nil
}

func (b *builder) build(name string) (*core.Job, error) {
	if job, ok := b.jobs[name]; ok {
		return job, nil
	}
	jd, ok := b.defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDependency, name)
	}
	if b.visiting[name] {
		return nil, fmt.Errorf("%w: %s", ErrDependencyCycle, name)
	}
	b.visiting[name] = true
	defer delete(b.visiting, name)

	var deps []*core.Job
	for _, dep := range jd.Dependencies {
		depName, _ := dep.(string)
		depJob, err := b.build(depName)
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", name, err)
		}
		deps = append(deps, depJob)
	}

	opts, err := b.jobOptions(jd)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", name, err)
	}
	if len(deps) > 0 {
		opts = append(opts, core.WithDependencies(deps...))
	}

	task, err := b.opts.Lookup(jd.Task)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", name, err)
	}
	job, err := core.NewJob(task, opts...)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", name, err)
	}
	b.jobs[name] = job
	return job, nil
}

func (b *builder) jobOptions(jd *jobDefinition) ([]core.JobOption, error) {
	opts := []core.JobOption{
		core.WithName(jd.Name),
		core.WithClock(b.opts.Clock),
	}

	if jd.Args != nil {
		opts = append(opts, core.WithArgs(expandEnv(jd.Args)))
	}

	startAt, err := core.ParseStartAt(os.ExpandEnv(jd.StartAt))
	if err != nil {
		return nil, err
	}
	if !startAt.IsZero() {
		opts = append(opts, core.WithStartAt(startAt))
	}

	if jd.MaxWorkingTime < 0 {
		return nil, fmt.Errorf("maxWorkingTime must not be negative: %d", jd.MaxWorkingTime)
	}
	if jd.MaxWorkingTime > 0 {
		opts = append(opts, core.WithMaxWorkingTime(time.Duration(jd.MaxWorkingTime)*time.Second))
	}

	tries := b.opts.Tries
	if jd.Tries != nil {
		tries = *jd.Tries
	}
	opts = append(opts, core.WithTries(tries))

	interval := b.opts.RetryInterval
	if jd.RetryInterval != "" {
		d, err := time.ParseDuration(jd.RetryInterval)
		if err != nil {
			return nil, fmt.Errorf("invalid retryInterval %q: %w", jd.RetryInterval, err)
		}
		interval = d
	}
	if interval > 0 {
		opts = append(opts, core.WithRetryInterval(interval))
	}
	return opts, nil
}

// expandEnv returns a copy of args with $VAR references expanded in every
// string value.
func expandEnv(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = expandValue(v)
	}
	return out
}

func expandValue(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = expandValue(item)
		}
		return out
	case map[string]any:
		return expandEnv(val)
	default:
		return v
	}
}
