package domain

import (
	"errors"
	"fmt"
)

// Lending errors. Callers wrap them with context and match with errors.Is.
var (
	ErrNotFound      = errors.New("resource not found")
	ErrValidation    = errors.New("invalid input")
	ErrConflict      = errors.New("book is not available")
	ErrAuthorization = errors.New("not authorized")
	ErrState         = errors.New("invalid state transition")
	ErrBusy          = errors.New("mutation already in flight")
	ErrNetwork       = errors.New("request repository unreachable")
)

// Code is the stable wire identifier of an error kind
type Code string

const (
	CodeNotFound   Code = "NOT_FOUND"
	CodeValidation Code = "VALIDATION"
	CodeConflict   Code = "CONFLICT"
	CodeForbidden  Code = "FORBIDDEN"
	CodeState      Code = "INVALID_STATE"
	CodeBusy       Code = "BUSY"
	CodeNetwork    Code = "UNAVAILABLE"
	CodeInternal   Code = "INTERNAL"
)

var codeTable = []struct {
	err  error
	code Code
}{
	{ErrNotFound, CodeNotFound},
	{ErrValidation, CodeValidation},
	{ErrConflict, CodeConflict},
	{ErrAuthorization, CodeForbidden},
	{ErrState, CodeState},
	{ErrBusy, CodeBusy},
	{ErrNetwork, CodeNetwork},
}

// CodeOf returns the wire code for err, CodeInternal when it is not a lending error
func CodeOf(err error) Code {
	for _, entry := range codeTable {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return CodeInternal
}

// FromCode rebuilds a wrapped sentinel from a wire code and message
func FromCode(code Code, message string) error {
	for _, entry := range codeTable {
		if entry.code == code {
			if message == "" {
				return entry.err
			}
			return fmt.Errorf("%w: %s", entry.err, message)
		}
	}
	if message == "" {
		message = "unexpected response"
	}
	return fmt.Errorf("%w: %s", ErrNetwork, message)
}

// IsLendingError reports whether err belongs to the lending taxonomy
func IsLendingError(err error) bool {
	return CodeOf(err) != CodeInternal
}
