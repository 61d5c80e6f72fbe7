package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrDefinitionNotFound = errors.New("resource definition not found")
	ErrDefinitionParse    = errors.New("resource definition parse error")
	ErrExecution          = errors.New("statement execution failed")
	ErrTrigger            = errors.New("trigger failed")
	ErrInvalidRequest     = errors.New("invalid request")
)

// DefinitionNotFoundError reports that no definition source exists for a resource name.
type DefinitionNotFoundError struct {
	Name string
	Path string
}

func (e *DefinitionNotFoundError) Error() string {
	return fmt.Sprintf("resource %s not found - expected %s", e.Name, e.Path)
}

func (e *DefinitionNotFoundError) Is(target error) bool {
	return target == ErrDefinitionNotFound
}

// DefinitionParseError wraps a failure to parse or interpret a definition.
type DefinitionParseError struct {
	Name string
	Path string
	Err  error
}

func (e *DefinitionParseError) Error() string {
	return fmt.Sprintf("error parsing resource %s (%s): %v", e.Name, e.Path, e.Err)
}

func (e *DefinitionParseError) Is(target error) bool {
	return target == ErrDefinitionParse
}

func (e *DefinitionParseError) Unwrap() error {
	return e.Err
}

// ExecutionError wraps a driver failure. Statement is empty when the failure
// happened outside a statement, e.g. while acquiring the connection.
type ExecutionError struct {
	Statement string
	Err       error
}

func (e *ExecutionError) Error() string {
	if e.Statement == "" {
		return fmt.Sprintf("execution failed: %v", e.Err)
	}
	return fmt.Sprintf("execution failed: %v [sql: %s]", e.Err, e.Statement)
}

func (e *ExecutionError) Is(target error) bool {
	return target == ErrExecution
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// TriggerError wraps a failure raised by a trigger.
type TriggerError struct {
	Resource string
	Trigger  string
	Before   bool
	Err      error
}

func (e *TriggerError) Error() string {
	phase := "after"
	if e.Before {
		phase = "before"
	}
	return fmt.Sprintf("%s trigger %s on resource %s failed: %v", phase, e.Trigger, e.Resource, e.Err)
}

func (e *TriggerError) Is(target error) bool {
	return target == ErrTrigger
}

func (e *TriggerError) Unwrap() error {
	return e.Err
}
