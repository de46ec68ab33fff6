// Package spec loads jobs from YAML job files.
package spec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dagu-org/jobloop/internal/cmn/logger"
	"github.com/dagu-org/jobloop/internal/cmn/logger/tag"
	"github.com/dagu-org/jobloop/internal/core"
	"github.com/dagu-org/jobloop/internal/tasks"
	"github.com/go-viper/mapstructure/v2"
	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

var (
	ErrNoJobs            = errors.New("no jobs defined")
	ErrDuplicateName     = errors.New("duplicate job name")
	ErrUnknownDependency = errors.New("unknown dependency")
	ErrDependencyCycle   = errors.New("dependency cycle")
)

// LoadOptions configure how job files are turned into jobs.
type LoadOptions struct {
	// Tries applies to jobs that set neither tries nor a default.
	Tries int
	// RetryInterval applies to jobs that set neither retryInterval nor a default.
	RetryInterval time.Duration
	// Lookup resolves task names. Defaults to tasks.Lookup.
	Lookup func(name string) (core.Task, error)
	// Clock is used to compute deadlines. Defaults to time.Now.
	Clock func() time.Time
}

// LoadOption sets a field of LoadOptions.
type LoadOption func(*LoadOptions)

// WithDefaultTries sets the retry budget of jobs that do not specify one.
func WithDefaultTries(n int) LoadOption {
	return func(o *LoadOptions) { o.Tries = n }
}

// WithDefaultRetryInterval sets the retry interval of jobs that do not specify one.
func WithDefaultRetryInterval(d time.Duration) LoadOption {
	return func(o *LoadOptions) { o.RetryInterval = d }
}

// WithTaskLookup replaces the task registry.
func WithTaskLookup(fn func(name string) (core.Task, error)) LoadOption {
	return func(o *LoadOptions) { o.Lookup = fn }
}

// WithClock replaces time.Now when computing deadlines.
func WithClock(now func() time.Time) LoadOption {
	return func(o *LoadOptions) { o.Clock = now }
}

// Load reads the job file at path. Dotenv files are resolved relative to
// the job file's directory.
func Load(ctx context.Context, path string, opts ...LoadOption) ([]*core.Job, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the command line
	if err != nil {
		return nil, fmt.Errorf("failed to read job file %q: %w", path, err)
	}
	jobs, err := load(ctx, data, filepath.Dir(path), opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return jobs, nil
}

// LoadFiles loads every job file matching pattern, which may use "**".
// Job names must be unique across all files.
func LoadFiles(ctx context.Context, pattern string, opts ...LoadOption) ([]*core.Job, error) {
	files, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no job file matches %q", pattern)
	}
	sort.Strings(files)

	var all []*core.Job
	seen := make(map[string]string)
	for _, file := range files {
		jobs, err := Load(ctx, file, opts...)
		if err != nil {
			return nil, err
		}
		for _, job := range jobs {
			if prev, ok := seen[job.Name()]; ok {
				return nil, fmt.Errorf("%w: %s in %s and %s", ErrDuplicateName, job.Name(), prev, file)
			}
			seen[job.Name()] = file
		}
		logger.Debug(ctx, "Job file loaded", tag.File(file), tag.Count(len(jobs)))
		all = append(all, jobs...)
	}
	return all, nil
}

// LoadYAML builds jobs from job file content. Relative dotenv paths are
// resolved against the working directory.
func LoadYAML(ctx context.Context, data []byte, opts ...LoadOption) ([]*core.Job, error) {
	return load(ctx, data, ".", opts)
}

func load(ctx context.Context, data []byte, baseDir string, opts []LoadOption) ([]*core.Job, error) {
	o := LoadOptions{
		Tries:  core.DefaultTries,
		Lookup: tasks.Lookup,
		Clock:  time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	raw, err := unmarshalData(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	def, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode job file: %w", err)
	}
	if len(def.Jobs) == 0 {
		return nil, ErrNoJobs
	}

	if err := loadDotenv(ctx, def.Dotenv, baseDir); err != nil {
		return nil, err
	}

	b := &builder{
		opts:     o,
		defaults: def.Defaults,
		defs:     make(map[string]*jobDefinition),
		jobs:     make(map[string]*core.Job),
		visiting: make(map[string]bool),
	}
	for _, jd := range def.Jobs {
		if err := b.register(jd); err != nil {
			return nil, err
		}
	}

	jobs := make([]*core.Job, 0, len(def.Jobs))
	for _, jd := range def.Jobs {
		job, err := b.build(jd.Name)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func unmarshalData(data []byte) (map[string]any, error) {
	var cm map[string]any
	err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&cm)
	if errors.Is(err, io.EOF) {
		err = nil
	}
	return cm, err
}

func decode(cm map[string]any) (*definition, error) {
	def := new(definition)
	if err := decodeInto(cm, def); err != nil {
		return nil, err
	}
	return def, nil
}

func decodeInto(in any, out any) error {
	md, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return md.Decode(in)
}

func loadDotenv(ctx context.Context, value any, baseDir string) error {
	var files []string
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		files = []string{v}
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("dotenv: expected a file path, got %T", item)
			}
			files = append(files, s)
		}
	default:
		return fmt.Errorf("dotenv: expected a file path or a list, got %T", value)
	}

	for _, file := range files {
		path := os.ExpandEnv(file)
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		if err := godotenv.Overload(path); err != nil {
			return fmt.Errorf("failed to load dotenv file %s: %w", file, err)
		}
		logger.Debug(ctx, "Dotenv file loaded", tag.File(path))
	}
	return nil
}
