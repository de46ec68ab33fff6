package spec

// definition is the top level of a job file.
type definition struct {
	// Dotenv is a file path or a list of file paths, relative to the job file.
	Dotenv any
	// Defaults are merged into every job that leaves the field unset.
	Defaults *jobDefinition
	Jobs     []*jobDefinition
}

// jobDefinition is one job in a job file.
type jobDefinition struct {
	Name string
	Task string
	Args map[string]any
	// StartAt is "2006-01-02 15:04:05.000000" or RFC 3339.
	StartAt string
	// MaxWorkingTime is the time budget in seconds.
	MaxWorkingTime int
	Tries          *int
	// RetryInterval is a Go duration such as "5s".
	RetryInterval string
	// Dependencies holds job names or inline job definitions.
	Dependencies []any
}
