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

package reader

import (
	"github.com/pkg/errors"

	"github.com/dashevo/drive/types"
)

var (
	// ErrMalformedHeader indicates a header without block identity.
	ErrMalformedHeader = types.NewProtocolError("malformed state transition header")
	// ErrAlreadyRunning indicates a second concurrent Run of the same mediator.
	ErrAlreadyRunning = errors.New("reader is already running")
	// ErrStopped indicates a mediator that halted on a fatal error.
	ErrStopped = errors.New("reader is stopped")
)
