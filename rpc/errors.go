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

package rpc

import (
	"github.com/pkg/errors"
)

const (
	// codeNotFound is the node error code for unknown blocks and transactions.
	codeNotFound = -5
	// codeOutOfRange is the node error code for heights above the tip.
	codeOutOfRange = -8
)

var (
	// ErrNotFound indicates the node does not know the requested object.
	ErrNotFound = errors.New("not found")
	// ErrUnexpectedRequest indicates a request from the node that is not a notification.
	ErrUnexpectedRequest = errors.New("unexpected request from node")
)
