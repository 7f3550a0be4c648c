package client

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSessionExpired indicates the session could not be re-established:
	// the refresh call failed, or a request came back unauthorized even
	// after a successful refresh. The token holder is empty once this is
	// returned.
	ErrSessionExpired = errors.New("session expired")

	// ErrStepUpRequired indicates the panel demands secondary verification
	// before the request will be allowed. Use errors.Is to detect it; the
	// concrete *StepUpError carries the accepted verification methods.
	ErrStepUpRequired = errors.New("step-up verification required")
)

// StepUpError reports an elevated-risk response. Methods lists the
// verification methods the panel will accept, as sent by the server.
type StepUpError struct {
	Methods []string
}

func (e *StepUpError) Error() string {
	if len(e.Methods) == 0 {
		return "step-up verification required"
	}
	return fmt.Sprintf("step-up verification required (methods: %s)", strings.Join(e.Methods, ", "))
}

// Is makes errors.Is(err, ErrStepUpRequired) match any *StepUpError.
func (e *StepUpError) Is(target error) bool {
	return target == ErrStepUpRequired
}
