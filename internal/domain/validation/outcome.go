package validation

import "fmt"

// Outcome is the closed set of job outcomes the external CI system can report
// through its webhook. Payloads carrying anything else are rejected at the
// boundary before any transition logic runs.
type Outcome string

const (
	// OutcomeSuccess indicates the dispatched job finished successfully.
	OutcomeSuccess Outcome = "SUCCESS"

	// OutcomeFailure indicates the dispatched job failed.
	OutcomeFailure Outcome = "FAILURE"

	// OutcomeInProgress is an informational heartbeat; it never advances the
	// task's monotonic state graph.
	OutcomeInProgress Outcome = "IN_PROGRESS"
)

// String returns the string representation of the Outcome.
func (o Outcome) String() string { return string(o) }

// ParseOutcome converts a webhook status string to an Outcome. Unknown values
// return an error so the caller can reject the delivery without applying it.
func ParseOutcome(s string) (Outcome, error) {
	switch s {
	case "SUCCESS":
		return OutcomeSuccess, nil
	case "FAILURE":
		return OutcomeFailure, nil
	case "IN_PROGRESS":
		return OutcomeInProgress, nil
	default:
		return "", fmt.Errorf("unknown job outcome %q", s)
	}
}

// JobArtifacts carries the optional artifact references a webhook delivery may
// attach to an outcome. All fields are opaque to the orchestrator beyond
// presence checks.
type JobArtifacts struct {
	// DiffURL points at the generated diff artifact on the CI system.
	DiffURL string

	// CurrentCommitHash is the commit the diff was actually generated against.
	CurrentCommitHash string

	// ErrorMessage is human-readable failure text.
	ErrorMessage string

	// ErrorFileURL points at a failure artifact (console log, report).
	ErrorFileURL string
}

// IntegrationResult records how a finished integration ended.
type IntegrationResult string

const (
	// IntegrationResultSuccess indicates the reviewed diff was integrated.
	IntegrationResultSuccess IntegrationResult = "SUCCESS"

	// IntegrationResultFailure indicates the integration job failed.
	IntegrationResultFailure IntegrationResult = "FAILURE"
)

// JobKind names the build jobs the orchestrator can request from the external
// CI system.
type JobKind string

const (
	// JobKindGenerateDiff produces the diff between two revisions.
	JobKindGenerateDiff JobKind = "generate-diff"

	// JobKindRunIntegration integrates a reviewed diff.
	JobKindRunIntegration JobKind = "run-integration"
)

// String returns the string representation of the JobKind.
func (k JobKind) String() string { return string(k) }
