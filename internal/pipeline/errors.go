package pipeline

import (
	"errors"
	"fmt"
)

// ErrInvalidLessonStructure marks generation output that parsed as JSON but
// violates the lesson shape (no Narrator, segment referencing an undeclared
// speaker). Retryable at the job-runner level: a fresh generation may pass.
var ErrInvalidLessonStructure = errors.New("invalid lesson structure")

// ErrInternalConsistency marks a pipeline logic bug, e.g. synthesis reached a
// speaker with no assigned voice. Never retried.
var ErrInternalConsistency = errors.New("internal consistency error")

// ErrMissingPrompt marks an absent prompt file. A deployment defect, fatal.
var ErrMissingPrompt = errors.New("missing prompt file")

// MalformedOutputError carries the raw model response when it cannot be
// parsed as lesson JSON, so the failure is diagnosable from the job record.
type MalformedOutputError struct {
	Raw string
	Err error
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("malformed generation output: %v", e.Err)
}

func (e *MalformedOutputError) Unwrap() error {
	return e.Err
}
