package tasks

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dagu-org/jobloop/internal/cmn/logger"
	"github.com/dagu-org/jobloop/internal/cmn/logger/tag"
	"github.com/dagu-org/jobloop/internal/core"
)

func init() {
	Register("read_lines", "Read text files line by line, one line per step", ReadLines)
}

// ReadLinesArgs are the arguments of ReadLines.
type ReadLinesArgs struct {
	// Path is a file path or a doublestar pattern such as "logs/**/*.txt".
	Path string `mapstructure:"path"`
}

// ReadLines reads every file matching Path, one line per resumption.
// Files are opened lazily so a missing file fails the step, not the job
// construction.
func ReadLines(_ context.Context, args ...any) (core.Step, error) {
	var a ReadLinesArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		return nil, errors.New("read_lines: path is required")
	}
	return &lineReader{pattern: a.Path}, nil
}

type lineReader struct {
	pattern string
	files   []string
	file    *os.File
	scanner *bufio.Scanner
	lines   int
	started bool
}

func (r *lineReader) Resume(ctx context.Context, proceed bool) (core.StepState, error) {
	if !proceed {
		return core.StepCompleted, r.close()
	}
	if !r.started {
		r.started = true
		files, err := doublestar.FilepathGlob(r.pattern)
		if err != nil {
			return core.StepYielded, fmt.Errorf("invalid pattern %q: %w", r.pattern, err)
		}
		if len(files) == 0 {
			return core.StepYielded, fmt.Errorf("no file matches %q", r.pattern)
		}
		sort.Strings(files)
		r.files = files
	}

	for {
		if r.scanner == nil {
			if len(r.files) == 0 {
				logger.Info(ctx, "Finished reading", tag.Count(r.lines))
				return core.StepCompleted, nil
			}
			if err := r.open(r.files[0]); err != nil {
				return core.StepYielded, err
			}
			r.files = r.files[1:]
		}
		if r.scanner.Scan() {
			r.lines++
			logger.Debug(ctx, "Line read", tag.File(r.file.Name()), tag.Count(r.lines), slog.String("line", r.scanner.Text()))
			return core.StepYielded, nil
		}
		if err := r.scanner.Err(); err != nil {
			name := r.file.Name()
			_ = r.close()
			return core.StepYielded, fmt.Errorf("failed to read %s: %w", name, err)
		}
		if err := r.close(); err != nil {
			return core.StepYielded, err
		}
	}
}

func (r *lineReader) open(path string) error {
	f, err := os.Open(path) //nolint:gosec // path comes from the job file
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	r.file = f
	r.scanner = bufio.NewScanner(f)
	return nil
}

func (r *lineReader) close() error {
	r.scanner = nil
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
