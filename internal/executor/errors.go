package executor

import (
	"errors"
	"fmt"

	"github.com/openclaw/dispatch/internal/plan"
)

// ConfirmationError pauses execution: a tool flagged as dangerous was
// invoked without explicit approval. It is a control-flow signal, not
// a failure; callers must surface it to the user and may re-run the
// step with confirm_dangerous_action set.
type ConfirmationError struct {
	Step plan.Step
	Tool string
}

func (e *ConfirmationError) Error() string {
	return fmt.Sprintf("tool %s requires explicit confirmation before running", e.Tool)
}

// IsConfirmation reports whether err is a confirmation pause and
// returns it when so.
func IsConfirmation(err error) (*ConfirmationError, bool) {
	var ce *ConfirmationError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
