package trigger

import (
	"fmt"
	"strings"

	"github.com/djlord-it/bizflow/internal/condition"
	"github.com/djlord-it/bizflow/internal/domain"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return "invalid trigger: " + strings.Join(msgs, "; ")
}

// Is makes errors.Is(err, ErrInvalid) hold for any ValidationErrors.
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalid
}

const maxNameLength = 200

func validate(t domain.Trigger) error {
	var errs ValidationErrors

	switch {
	case t.Name == "":
		errs = append(errs, ValidationError{Field: "name", Message: "is required"})
	case len(t.Name) > maxNameLength:
		errs = append(errs, ValidationError{Field: "name", Message: fmt.Sprintf("must be at most %d characters", maxNameLength)})
	}

	if !t.EventType.Valid() {
		errs = append(errs, ValidationError{Field: "eventType", Message: fmt.Sprintf("unknown event type %q", t.EventType)})
	}

	if !t.Action.Type.Valid() {
		errs = append(errs, ValidationError{Field: "actionType", Message: fmt.Sprintf("unknown action type %q", t.Action.Type)})
	} else if err := t.Action.Validate(); err != nil {
		errs = append(errs, ValidationError{Field: "actionConfig", Message: err.Error()})
	}

	if err := condition.Validate(t.Conditions); err != nil {
		errs = append(errs, ValidationError{Field: "conditions", Message: err.Error()})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
