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

package storage

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// DSN is a sqlite connection string: a file name and driver parameters.
// It is immutable; With returns modified copies.
type DSN struct {
	filename string
	params   url.Values
}

// NewDSN parses "file:name?k=v&..." or a bare file name.
func NewDSN(s string) (*DSN, error) {
	parts := strings.SplitN(s, "?", 2)
	dsn := &DSN{
		filename: strings.TrimPrefix(parts[0], "file:"),
		params:   url.Values{},
	}
	if dsn.filename == "" {
		return nil, errors.Wrap(ErrInvalidDSN, "empty file name")
	}
	if len(parts) < 2 {
		return dsn, nil
	}

	for _, v := range strings.Split(parts[1], "&") {
		param := strings.SplitN(v, "=", 2)
		if len(param) != 2 || param[0] == "" {
			return nil, errors.Wrapf(ErrInvalidDSN, "unrecognized parameter: %s", v)
		}
		dsn.params.Set(param[0], param[1])
	}
	return dsn, nil
}

// FileName returns the database file of dsn.
func (dsn *DSN) FileName() string { return dsn.filename }

// Param returns the value of a driver parameter.
func (dsn *DSN) Param(key string) (string, bool) {
	v, ok := dsn.params[key]
	if !ok || len(v) == 0 {
		return "", false
	}
	return v[0], true
}

// With returns a copy of dsn with key set to value. An empty value removes key.
func (dsn *DSN) With(key, value string) *DSN {
	c := &DSN{filename: dsn.filename, params: make(url.Values, len(dsn.params)+1)}
	for k, v := range dsn.params {
		c.params[k] = v
	}
	if value == "" {
		c.params.Del(key)
	} else {
		c.params.Set(key, value)
	}
	return c
}

// Format renders the connection string with parameters sorted by key.
func (dsn *DSN) Format() string {
	if len(dsn.params) == 0 {
		return "file:" + dsn.filename
	}
	return "file:" + dsn.filename + "?" + dsn.params.Encode()
}
