package copilot

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/memstore"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/n8n"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/validation"
)

// ErrorKind aliases the engine client's closed taxonomy so transport kinds
// pass through unchanged, extended with the kinds only the coordinator
// itself produces.
type ErrorKind = n8n.ErrorKind

const (
	// KindDeadlineExceeded marks operations that ran out of context.
	KindDeadlineExceeded ErrorKind = "DeadlineExceeded"
	// KindCatalogUnavailable marks catalog reads before any snapshot exists.
	KindCatalogUnavailable ErrorKind = "CatalogUnavailable"
	// KindPolicyViolation marks deploys refused by the admission pipeline.
	KindPolicyViolation ErrorKind = "PolicyViolation"
)

// Error is the failure shape every coordinator operation returns. The
// protocol adapter serializes it verbatim; agents branch on Kind, never on
// message text.
type Error struct {
	Kind          ErrorKind `json:"kind"`
	Message       string    `json:"message"`
	Retryable     bool      `json:"retryable"`
	RecoverySteps []string  `json:"recoverySteps,omitempty"`
	Details       string    `json:"details,omitempty"`

	// Validation carries the full pipeline verdict when a deploy was refused
	// admission. It rides beside the error in the wire envelope, not inside
	// it, so the field stays out of the error's own JSON.
	Validation *validation.Result `json:"-"`

	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("copilot: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// AsError extracts the coordinator failure from an error chain.
func AsError(err error) (*Error, bool) {
	var opErr *Error
	if errors.As(err, &opErr) {
		return opErr, true
	}
	return nil, false
}

// classify maps a component failure onto the coordinator taxonomy. Context
// expiry wins over everything else: a transport error caused by a dead
// context is a deadline problem, not an engine problem.
func classify(err error) *Error {
	if opErr, ok := AsError(err); ok {
		return opErr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{
			Kind:      KindDeadlineExceeded,
			Message:   err.Error(),
			Retryable: true,
			RecoverySteps: []string{
				"retry with a longer deadline",
				"check whether the engine is responding slowly",
			},
			cause: err,
		}
	}
	if apiErr, ok := n8n.AsAPIError(err); ok {
		return &Error{
			Kind:          apiErr.Kind,
			Message:       apiErr.Message,
			Retryable:     apiErr.Retryable,
			RecoverySteps: apiErr.RecoverySteps,
			Details:       apiErr.Details,
			cause:         err,
		}
	}
	if errors.Is(err, memstore.ErrBadPattern) {
		return &Error{
			Kind:    n8n.KindValidationBadReq,
			Message: err.Error(),
			RecoverySteps: []string{
				"use a literal key or a prefix with a single trailing % wildcard",
			},
			cause: err,
		}
	}
	return &Error{
		Kind:    n8n.KindUnknown,
		Message: err.Error(),
		cause:   err,
	}
}

// admissionError reports a deploy refused by validation. The verdict rides
// along so agents can see exactly which layer refused and why.
func admissionError(res *validation.Result, strict bool) *Error {
	msg := fmt.Sprintf("workflow failed validation at layer %q with %d error(s)",
		res.FailedLayer, len(res.Errors))
	steps := []string{
		"fix the reported issues and resubmit",
		"run validate_workflow to iterate without deploying",
	}
	if res.Valid && strict && len(res.Warnings) > 0 {
		msg = fmt.Sprintf("strict mode refused %d warning(s)", len(res.Warnings))
		steps = []string{
			"resolve the warnings or deploy with strict mode off",
		}
	}
	return &Error{
		Kind:          KindPolicyViolation,
		Message:       msg,
		RecoverySteps: steps,
		Validation:    res,
	}
}

// catalogNotReadyError directs agents at the resync path instead of handing
// them a silently empty result.
func catalogNotReadyError() *Error {
	return &Error{
		Kind:      KindCatalogUnavailable,
		Message:   "node catalog has no snapshot yet",
		Retryable: true,
		RecoverySteps: []string{
			"run resync_catalog to force a sync",
			"check engine connectivity and introspection credentials",
		},
	}
}
