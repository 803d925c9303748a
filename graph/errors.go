package graph

import (
	"fmt"
	"strings"
)

// ValidationError reports a buffer that does not match its declared spec, or
// a handle whose expectations disagree with the declaration.
type ValidationError struct {
	Resource string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("resource %s: %s", e.Resource, e.Reason)
}

// NotFoundError reports an operation on an undeclared resource.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("resource %s not declared", e.Resource)
}

// MissingInputError reports a required upstream resource whose buffer is
// unset at the time a producer (or reader) needs it.
type MissingInputError struct {
	Resource string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("resource %s has no buffer", e.Resource)
}

// CycleError reports a resource that transitively depends on itself. Path
// holds the dependency chain, ending with the repeated name.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Path, " -> "))
}

// ContractError reports a producer that ran but left one of its declared
// outputs stale. This is an integration bug in the producer, not a data
// problem, and is surfaced loudly.
type ContractError struct {
	Producer string
	Output   string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("producer %s left output %s stale", e.Producer, e.Output)
}
