package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dagu-org/jobloop/internal/cmn/fileutil"
	"github.com/dagu-org/jobloop/internal/cmn/logger"
	"github.com/dagu-org/jobloop/internal/cmn/logger/tag"
	"github.com/dagu-org/jobloop/internal/core"
)

func init() {
	Register("create_dirs", "Create numbered directories, one per step", CreateDirs)
	Register("remove_dirs", "Remove numbered directories, one per step", RemoveDirs)
}

// DirsArgs are the arguments of CreateDirs and RemoveDirs.
type DirsArgs struct {
	Root   string `mapstructure:"root"`
	Prefix string `mapstructure:"prefix"`
	Count  int    `mapstructure:"count"`
}

func (a *DirsArgs) setDefaults() error {
	if a.Prefix == "" {
		a.Prefix = "dir"
	}
	if a.Root == "" {
		a.Root = "."
	}
	if a.Count < 0 {
		return fmt.Errorf("count must not be negative: %d", a.Count)
	}
	return nil
}

func (a *DirsArgs) path(i int) string {
	return filepath.Join(a.Root, fmt.Sprintf("%s%d", a.Prefix, i))
}

// CreateDirs creates Root/<Prefix>0 .. Root/<Prefix><Count-1>.
func CreateDirs(_ context.Context, args ...any) (core.Step, error) {
	var a DirsArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := a.setDefaults(); err != nil {
		return nil, err
	}
	return core.Iterate(a.Count, func(ctx context.Context, i int) error {
		dir := a.path(i)
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
		logger.Debug(ctx, "Directory created", tag.File(dir))
		return nil
	}, nil), nil
}

// RemoveDirs removes the directories CreateDirs creates. Directories that do
// not exist are skipped; a directory that is not empty fails the step.
func RemoveDirs(_ context.Context, args ...any) (core.Step, error) {
	var a DirsArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := a.setDefaults(); err != nil {
		return nil, err
	}
	return core.Iterate(a.Count, func(ctx context.Context, i int) error {
		dir := a.path(i)
		if !fileutil.IsDir(dir) {
			logger.Debug(ctx, "Directory already absent", tag.File(dir))
			return nil
		}
		if err := os.Remove(dir); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return fmt.Errorf("failed to remove %s: %w", dir, err)
		}
		logger.Debug(ctx, "Directory removed", tag.File(dir))
		return nil
	}, nil), nil
}
