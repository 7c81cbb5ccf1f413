package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrBlockhashRejected is returned by the chain client when a submission was
// refused because its recent blockhash is unknown, expired, or the identical
// transaction was already processed. The caller may refresh the blockhash and
// resend.
var ErrBlockhashRejected = stderrors.New("transaction rejected: blockhash not found or already processed")

// SimulationError is a submission rejection that carries the simulation
// (preflight) log output of the refused transaction.
type SimulationError struct {
	Message string
	Logs    []string
}

func (e *SimulationError) Error() string {
	var b strings.Builder
	b.WriteString("transaction simulation failed")
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

// LogText renders the simulation logs one per line, tab indented.
func (e *SimulationError) LogText() string {
	var b strings.Builder
	b.WriteString("Simulation error logs:\n")
	for _, line := range e.Logs {
		b.WriteByte('\t')
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// RejectedError is any other refusal reported by the chain for a submitted
// transaction, including on-chain execution errors.
type RejectedError struct {
	Reason string
	Cause  error
}

func (e *RejectedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("transaction rejected: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("transaction rejected: %s", e.Reason)
}

func (e *RejectedError) Unwrap() error {
	return e.Cause
}
