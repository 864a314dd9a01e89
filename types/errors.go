/*
 * Copyright 2018 The CovenantSQL Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package types

import (
	"github.com/pkg/errors"
)

var (
	// ErrTransientIO is the class of failures caused by an unreachable chain node or store.
	// They are retried by the boundary that issued the call.
	ErrTransientIO = errors.New("transient io failure")
	// ErrProtocolViolation is the class of failures that indicate a consensus-level inconsistency.
	// They halt the reader until an operator intervenes.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrRevisionNotIncreasing indicates a push that would break the undo stack ordering.
	ErrRevisionNotIncreasing = NewProtocolError("revision number is not greater than the stack top")
	// ErrInvalidAction indicates an unknown document action.
	ErrInvalidAction = NewProtocolError("invalid document action")
	// ErrInvalidPacketCID indicates a content identifier that does not carry a packet hash.
	ErrInvalidPacketCID = NewProtocolError("invalid packet content identifier")
	// ErrMalformedTransition indicates a state transition transaction without a packet commitment.
	ErrMalformedTransition = NewProtocolError("malformed state transition")
	// ErrNotStateTransition indicates a transaction of another special type.
	ErrNotStateTransition = errors.New("transaction is not a state transition")
)

type classError struct {
	msg   string
	class error
	cause error
}

func (e *classError) Error() string {
	if e.cause == nil {
		return e.msg
	}
	if e.msg == "" {
		return e.cause.Error()
	}
	return e.msg + ": " + e.cause.Error()
}

func (e *classError) Unwrap() error { return e.cause }

func (e *classError) Is(target error) bool { return target == e.class }

// NewProtocolError returns a sentinel error classified as ErrProtocolViolation.
func NewProtocolError(msg string) error {
	return &classError{msg: msg, class: ErrProtocolViolation}
}

// NewTransientError returns a sentinel error classified as ErrTransientIO.
func NewTransientError(msg string) error {
	return &classError{msg: msg, class: ErrTransientIO}
}

// AsTransient classifies err as ErrTransientIO while keeping it reachable through errors.Is.
func AsTransient(err error) error {
	if err == nil {
		return nil
	}
	return &classError{class: ErrTransientIO, cause: err}
}

// IsTransient reports whether err belongs to the ErrTransientIO class.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientIO)
}

// IsProtocolViolation reports whether err belongs to the ErrProtocolViolation class.
func IsProtocolViolation(err error) bool {
	return errors.Is(err, ErrProtocolViolation)
}
