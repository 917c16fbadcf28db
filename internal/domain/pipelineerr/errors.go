package pipelineerr

import (
	"errors"
	"fmt"
	"strings"
)

// Code classifies pipeline failures so callers can report per-record outcomes.
type Code string

const (
	CodeMalformedSource     Code = "malformed_source"
	CodePendingResolution   Code = "pending_resolution"
	CodeResolutionAmbiguous Code = "resolution_ambiguous"
	CodeValuationNotFound   Code = "valuation_not_found"
	CodeValuationTransient  Code = "valuation_transient"
	CodeStoreConflict       Code = "store_conflict"
	CodeValidation          Code = "validation"
	CodeNotFound            Code = "not_found"
	CodeConfig              Code = "config"
	CodeInternal            Code = "internal"
)

// Error is the canonical pipeline error wrapper.
type Error struct {
	Code    Code
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	op := strings.TrimSpace(e.Op)
	msg := strings.TrimSpace(e.Message)
	switch {
	case op != "" && msg != "":
		return fmt.Sprintf("%s: %s (%s)", op, msg, e.Code)
	case op != "":
		return fmt.Sprintf("%s (%s)", op, e.Code)
	case msg != "":
		return fmt.Sprintf("%s (%s)", msg, e.Code)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, op, message string, cause error) error {
	return &Error{
		Code:    code,
		Op:      strings.TrimSpace(op),
		Message: strings.TrimSpace(message),
		Cause:   cause,
	}
}

// Wrap annotates err with a code. Errors that already carry a code keep it.
func Wrap(code Code, op string, err error) error {
	if err == nil {
		return nil
	}
	if CodeOf(err) != "" {
		return err
	}
	return New(code, op, err.Error(), err)
}

func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// CodeOf extracts the outermost pipeline code, or "" for uncoded errors.
func CodeOf(err error) Code {
	var pe *Error
	if !errors.As(err, &pe) {
		return ""
	}
	return pe.Code
}

// IsRetryable reports whether the failure may succeed on a later attempt
// without operator action.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case CodeValuationTransient, CodeStoreConflict:
		return true
	default:
		return false
	}
}

// Reason renders err for storage in last_error / outcome columns.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) && strings.TrimSpace(pe.Message) != "" {
		return pe.Message
	}
	return err.Error()
}
