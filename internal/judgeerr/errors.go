// Package judgeerr defines the typed error taxonomy a Case can fail with,
// from archive validation through sandbox execution and solution checking.
package judgeerr

import "fmt"

// ArchiveError signals a malformed submission archive or manifest: the
// job is dropped and the slot that hit it continues (spec §7).
type ArchiveError struct {
	Reason string
}

func (e *ArchiveError) Error() string { return "archive error: " + e.Reason }

// NewArchiveError builds an ArchiveError with a formatted reason.
func NewArchiveError(format string, args ...interface{}) *ArchiveError {
	return &ArchiveError{Reason: fmt.Sprintf(format, args...)}
}

// SandboxError signals a double-run attempt or a container-runtime
// refusal. Treated the same as ArchiveError for reporting purposes.
type SandboxError struct {
	Reason string
}

func (e *SandboxError) Error() string { return "sandbox error: " + e.Reason }

// NewSandboxError builds a SandboxError with a formatted reason.
func NewSandboxError(format string, args ...interface{}) *SandboxError {
	return &SandboxError{Reason: fmt.Sprintf(format, args...)}
}

// SolutionError signals a seed file inconsistent with its network,
// raised by the reference solver and surfaced by the adjudicator as a
// rejection. The wording of Reason is part of the wire contract with
// existing dispatcher-side tests (spec §9(c)) and must not be reworded.
type SolutionError struct {
	Reason string
}

func (e *SolutionError) Error() string { return e.Reason }

// NewSolutionError builds a SolutionError with a fixed reason string.
func NewSolutionError(reason string) *SolutionError {
	return &SolutionError{Reason: reason}
}

// Sentinel reasons preserved verbatim from the original implementation
// for wire/test compatibility (spec §9(c), §4.4).
const (
	ReasonNodeNotInNetwork = "Node not in the network."
	ReasonNotInt           = "Vaule Error! Not int."
	ReasonWrongSeedCount   = "Wrong number of seeds"
)
