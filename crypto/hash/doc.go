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

// Package hash provides the 32-byte hash type shared by blocks, state
// transitions, packets and entities.
//
// All hashes handled by the node are SHA-256d (SHA-256 applied twice), the
// same construction the consensus chain uses for block and transaction ids.
// The string form is the byte-reversed hexadecimal encoding, matching what
// the chain RPC returns.
package hash
