package core

// JobStatus represents the lifecycle phases of a job.
type JobStatus int

const (
	JobUninitialized JobStatus = iota
	JobReady
	JobRunning
	JobCompleted
	JobFailed
	JobCancelled
)

// String returns the canonical lowercase token used in logs and status output.
func (s JobStatus) String() string {
	switch s {
	case JobUninitialized:
		return "uninitialized"
	case JobReady:
		return "ready"
	case JobRunning:
		return "running"
	case JobCompleted:
		return "completed"
	case JobFailed:
		return "failed"
	case JobCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the job will never run again.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// IsSuccess reports whether the job completed normally.
func (s JobStatus) IsSuccess() bool {
	return s == JobCompleted
}
