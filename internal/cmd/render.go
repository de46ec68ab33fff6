package cmd

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/dagu-org/jobloop/internal/core"
	"github.com/dagu-org/jobloop/internal/persis/filestate"
	"github.com/dagu-org/jobloop/internal/tasks"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"
)

var stateHeader = table.Row{"Job", "Completed"}

func renderState(w io.Writer, st filestate.State, names []string) {
	if len(names) == 0 {
		names = lo.Keys(st)
		slices.Sort(names)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(stateHeader)
	for _, name := range names {
		completed, ok := st[name]
		value := "-"
		if ok {
			value = fmt.Sprintf("%t", completed)
		}
		t.AppendRow(table.Row{name, value})
	}
	t.AppendFooter(table.Row{"Total", len(names)})
	t.Render()
}

var jobHeader = table.Row{
	"#",
	"Job",
	"Start At",
	"Deadline",
	"Tries Left",
	"Dependencies",
	"Status",
	"Error",
}

func renderJobs(w io.Writer, jobs []*core.Job) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(jobHeader)
	for i, job := range flattenJobs(jobs) {
		deps := lo.Map(job.Dependencies(), func(dep *core.Job, _ int) string {
			return dep.Name()
		})
		errText := ""
		if err := job.LastError(); err != nil && job.Status() != core.JobCompleted {
			errText = err.Error()
		}
		t.AppendRow(table.Row{
			i + 1,
			job.Name(),
			formatTime(job.StartAt()),
			formatTime(job.Deadline()),
			job.TriesRemaining(),
			strings.Join(deps, ", "),
			job.Status().String(),
			errText,
		})
	}
	t.Render()
}

func renderTasks(w io.Writer, defs []tasks.Definition) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Task", "Description"})
	for _, def := range defs {
		t.AppendRow(table.Row{def.Name, def.Description})
	}
	t.Render()
}

// flattenJobs lists jobs followed by their dependencies, each job once,
// dependencies before the jobs that need them.
func flattenJobs(jobs []*core.Job) []*core.Job {
	var out []*core.Job
	seen := make(map[*core.Job]struct{})
	var visit func(*core.Job)
	visit = func(job *core.Job) {
		if _, ok := seen[job]; ok {
			return
		}
		seen[job] = struct{}{}
		for _, dep := range job.Dependencies() {
			visit(dep)
		}
		out = append(out, job)
	}
	for _, job := range jobs {
		visit(job)
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.DateTime)
}
