package build

// DeploymentType selects how package loggers behave before the process
// hands them a real backend.
type DeploymentType byte

const (
	// Development builds create package loggers that already write to
	// stdout, which is what unit tests of a single package want.
	Development DeploymentType = iota

	// Production builds keep package loggers disabled until UseLogger is
	// called with a logger from the SubLoggerManager.
	Production
)
