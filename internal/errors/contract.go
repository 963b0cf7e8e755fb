package errors

import (
	stderrors "errors"
	"fmt"
)

// ContractViolation reports a broken internal invariant: an upstream bug such
// as an unsorted entry list or an unhandled entry kind. It is never a
// recoverable condition and callers are expected to stop the run.
type ContractViolation struct {
	Invariant string
	Detail    string
}

// Error implements the error interface.
func (e *ContractViolation) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("invariant violated: %s", e.Invariant)
	}
	return fmt.Sprintf("invariant violated: %s: %s", e.Invariant, e.Detail)
}

// Violation builds a ContractViolation with a formatted detail message.
func Violation(invariant, format string, args ...any) *ContractViolation {
	return &ContractViolation{
		Invariant: invariant,
		Detail:    fmt.Sprintf(format, args...),
	}
}

// Assert panics with a ContractViolation when cond is false.
func Assert(cond bool, invariant, format string, args ...any) {
	if !cond {
		panic(Violation(invariant, format, args...))
	}
}

// IsContractViolation reports whether err wraps a ContractViolation.
func IsContractViolation(err error) bool {
	var cv *ContractViolation
	return stderrors.As(err, &cv)
}

// RecoverViolation converts a panicking ContractViolation into an error stored
// in *errp. Other panics are re-raised.
//
//	defer errors.RecoverViolation(&err)
func RecoverViolation(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	if cv, ok := r.(*ContractViolation); ok {
		*errp = cv
		return
	}
	panic(r)
}
