// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package status implements the pass/fail-with-message object used at every call boundary
// between the host runtime and the plugin.
//
// A Status is mutable: most device backend calls receive one as an out-parameter and must set
// it (to OK or to a failure) before returning. Kernels forward a failed Status to the
// per-call context instead of returning an error.
package status

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code of a Status. Code OK is the only success value, anything else is a failure.
type Code int

const (
	OK Code = iota
	Cancelled
	Unknown
	InvalidArgument
	DeadlineExceeded
	NotFound
	AlreadyExists
	PermissionDenied
	ResourceExhausted
	FailedPrecondition
	Aborted
	OutOfRange
	Unimplemented
	Internal
	Unavailable
	DataLoss
	Unauthenticated
)

var codeNames = [...]string{
	OK:                 "OK",
	Cancelled:          "Cancelled",
	Unknown:            "Unknown",
	InvalidArgument:    "InvalidArgument",
	DeadlineExceeded:   "DeadlineExceeded",
	NotFound:           "NotFound",
	AlreadyExists:      "AlreadyExists",
	PermissionDenied:   "PermissionDenied",
	ResourceExhausted:  "ResourceExhausted",
	FailedPrecondition: "FailedPrecondition",
	Aborted:            "Aborted",
	OutOfRange:         "OutOfRange",
	Unimplemented:      "Unimplemented",
	Internal:           "Internal",
	Unavailable:        "Unavailable",
	DataLoss:           "DataLoss",
	Unauthenticated:    "Unauthenticated",
}

// String implements fmt.Stringer.
func (c Code) String() string {
	if c < 0 || int(c) >= len(codeNames) {
		return fmt.Sprintf("Code(%d)", int(c))
	}
	return codeNames[c]
}

// Status holds a Code and a message.
//
// The zero value is an OK status. A nil *Status is also considered OK by the read-only methods.
type Status struct {
	code    Code
	message string
}

// New returns a new OK status, ready to be passed as an out-parameter.
func New() *Status {
	return &Status{}
}

// Newf returns a new status with the given code and formatted message.
func Newf(code Code, format string, args ...any) *Status {
	s := &Status{}
	s.Set(code, format, args...)
	return s
}

// Set the code and message of the status.
func (s *Status) Set(code Code, format string, args ...any) {
	s.code = code
	if len(args) == 0 {
		s.message = format
		return
	}
	s.message = fmt.Sprintf(format, args...)
}

// SetOK resets the status to OK with an empty message.
func (s *Status) SetOK() {
	s.code = OK
	s.message = ""
}

// CopyFrom sets s to the same code and message as other.
func (s *Status) CopyFrom(other *Status) {
	if other == nil {
		s.SetOK()
		return
	}
	s.code = other.code
	s.message = other.message
}

// Code returns the status code.
func (s *Status) Code() Code {
	if s == nil {
		return OK
	}
	return s.code
}

// Message returns the status message.
func (s *Status) Message() string {
	if s == nil {
		return ""
	}
	return s.message
}

// Ok returns whether the status code is OK.
func (s *Status) Ok() bool {
	return s.Code() == OK
}

// Error implements the error interface.
func (s *Status) Error() string {
	if s.Message() == "" {
		return s.Code().String()
	}
	return fmt.Sprintf("%s: %s", s.Code(), s.Message())
}

// String implements fmt.Stringer.
func (s *Status) String() string {
	return s.Error()
}

// Err returns nil if the status is OK, or an error (with stack trace) wrapping a copy of the status otherwise.
func (s *Status) Err() error {
	if s.Ok() {
		return nil
	}
	cp := *s
	return errors.WithStack(&cp)
}

// FromError converts err to a Status. A nil error yields an OK status.
//
// If err wraps a *Status, its code and message are preserved, otherwise the code is Internal.
func FromError(err error) *Status {
	if err == nil {
		return New()
	}
	var st *Status
	if errors.As(err, &st) {
		cp := *st
		return &cp
	}
	return Newf(Internal, "%v", err)
}
