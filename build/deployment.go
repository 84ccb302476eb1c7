package build

// DeploymentType tells NewSubLogger where subsystem loggers get their output
// from. It's picked at compile time with the dev build tag.
type DeploymentType byte

const (
	// Development builds let the LoggingType build tags decide the log
	// backend, so unit tests can log to stdout.
	Development DeploymentType = iota

	// Production builds always use the handler of the caller, or no
	// logging at all if there is none.
	Production
)

// String returns the name of the deployment, as shown in the logs.
func (b DeploymentType) String() string {
	switch b {
	case Development:
		return "development"

	case Production:
		return "production"

	default:
		return "unknown"
	}
}
