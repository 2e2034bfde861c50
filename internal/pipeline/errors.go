package pipeline

import (
	"errors"
	"fmt"
)

// ErrCallTimeout marks a model call that exceeded the configured stage
// timeout, including time spent waiting on the background response.
var ErrCallTimeout = errors.New("model call exceeded configured timeout")

// StageCallError reports a stage whose retry budget is exhausted.
type StageCallError struct {
	Stage    string
	Attempts int
	Model    string
	Err      error
}

func (e *StageCallError) Error() string {
	return fmt.Sprintf("stage %s failed after %d attempt(s) with model %s: %v",
		e.Stage, e.Attempts, e.Model, e.Err)
}

func (e *StageCallError) Unwrap() error {
	return e.Err
}
