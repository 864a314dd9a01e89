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

package packet

import (
	"github.com/pkg/errors"

	"github.com/dashevo/drive/types"
)

var (
	// ErrNotFound indicates a packet neither stored locally nor known to the gateway.
	ErrNotFound = errors.New("packet not found")
	// ErrCIDMismatch indicates packet bytes that do not hash to their content identifier.
	ErrCIDMismatch = types.NewProtocolError("packet does not match its content identifier")
	// ErrStoreClosed indicates use of a closed store.
	ErrStoreClosed = errors.New("packet store is closed")
	// ErrNoGateway indicates a download without a configured gateway.
	ErrNoGateway = errors.New("no packet gateway configured")
)
