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

package timer

import (
	"sync"
	"time"

	"github.com/dashevo/drive/utils/log"
)

type mark struct {
	name string
	at   time.Time
}

// Timer defines a stop watch timer for performance analysis.
type Timer struct {
	sync.Mutex
	start time.Time
	marks []mark
}

// NewTimer returns a new stop watch timer instance.
func NewTimer() *Timer {
	return &Timer{
		start: time.Now(),
	}
}

// Add records a time pivot.
func (t *Timer) Add(name string) {
	t.Lock()
	defer t.Unlock()
	t.marks = append(t.marks, mark{name: name, at: time.Now()})
}

// Elapsed returns the duration since the timer started.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// ToLogFields returns analysis results as log fields.
func (t *Timer) ToLogFields() log.Fields {
	f := log.Fields{}
	for k, v := range t.ToMap() {
		f[k] = v
	}
	return f
}

// ToMap returns the duration of every stage plus the "total" span.
func (t *Timer) ToMap() map[string]time.Duration {
	t.Lock()
	defer t.Unlock()

	m := make(map[string]time.Duration, len(t.marks)+1)
	last := t.start
	for _, mk := range t.marks {
		m[mk.name] = mk.at.Sub(last)
		last = mk.at
	}
	if len(t.marks) > 0 {
		m["total"] = last.Sub(t.start)
	}
	return m
}
