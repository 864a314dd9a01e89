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

package conf

import "time"

// These parameters will not cause inconsistency within certain range.
const (
	// DefaultRetainedBlocks is the reorganization depth handled block by block. Deeper
	// reorganizations reset the state view.
	DefaultRetainedBlocks = 100
	// DefaultPollInterval is the reader pause between syncs without block notifications.
	DefaultPollInterval = 5 * time.Second
	// DefaultSyncCheckInterval is the poll period of the node sync status.
	DefaultSyncCheckInterval = 10 * time.Second
)
