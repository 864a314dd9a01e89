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

package stateview

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/jmoiron/jsonq"
	"github.com/pkg/errors"
)

const (
	// DefaultLimit is the page size of a query without a limit.
	DefaultLimit = 100
	// MaxLimit bounds the page size of a query.
	MaxLimit = 100
)

// Operator compares a document field with a query value.
type Operator string

// Supported where operators.
const (
	OpEqual        Operator = "=="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpIn           Operator = "in"
)

// Condition is one where clause. Field is a dot separated path into the document data,
// or one of the system fields $id, $type, $revision and $ownerId.
type Condition struct {
	Field    string
	Operator Operator
	Value    interface{}
}

// Order is one sort clause.
type Order struct {
	Field      string
	Descending bool
}

// Query selects records of one container and type.
type Query struct {
	Where   []Condition
	OrderBy []Order
	Limit   int
	// StartAt is the 1-based position of the first returned record.
	StartAt int
}

// Validate checks q and fills in the default limit.
func (q *Query) Validate() error {
	for _, c := range q.Where {
		if c.Field == "" {
			return errors.Wrap(ErrInvalidQuery, "empty where field")
		}
		switch c.Operator {
		case OpEqual, OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		case OpIn:
			if v := reflect.ValueOf(c.Value); !v.IsValid() || v.Kind() != reflect.Slice {
				return errors.Wrapf(ErrInvalidQuery, "operator in on %s needs a list", c.Field)
			}
		default:
			return errors.Wrapf(ErrInvalidQuery, "unknown operator %q", c.Operator)
		}
	}
	for _, o := range q.OrderBy {
		if o.Field == "" {
			return errors.Wrap(ErrInvalidQuery, "empty order field")
		}
	}
	if q.Limit < 0 || q.Limit > MaxLimit {
		return errors.Wrapf(ErrInvalidQuery, "limit must be between 1 and %d", MaxLimit)
	}
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	if q.StartAt < 0 {
		return errors.Wrap(ErrInvalidQuery, "negative startAt")
	}
	return nil
}

// ParseQuery builds a query from its generic wire form:
//
//	{"where": [["name", "==", "x"], ...], "orderBy": [["age", "desc"]], "limit": 10, "startAt": 1}
func ParseQuery(raw map[string]interface{}) (q *Query, err error) {
	q = &Query{}
	if raw == nil {
		return
	}

	if w, ok := raw["where"]; ok {
		clauses, ok := normalizeList(w)
		if !ok {
			return nil, errors.Wrap(ErrInvalidQuery, "where must be a list")
		}
		for _, c := range clauses {
			parts, ok := normalizeList(c)
			if !ok || len(parts) != 3 {
				return nil, errors.Wrap(ErrInvalidQuery, "where clause must be [field, operator, value]")
			}
			field, fok := parts[0].(string)
			op, ook := parts[1].(string)
			if !fok || !ook {
				return nil, errors.Wrap(ErrInvalidQuery, "where field and operator must be strings")
			}
			value := parts[2]
			if list, ok := normalizeList(value); ok {
				value = list
			}
			q.Where = append(q.Where, Condition{Field: field, Operator: Operator(op), Value: value})
		}
	}

	if o, ok := raw["orderBy"]; ok {
		clauses, ok := normalizeList(o)
		if !ok {
			return nil, errors.Wrap(ErrInvalidQuery, "orderBy must be a list")
		}
		for _, c := range clauses {
			parts, ok := normalizeList(c)
			if !ok || len(parts) == 0 || len(parts) > 2 {
				return nil, errors.Wrap(ErrInvalidQuery, "orderBy clause must be [field, direction]")
			}
			field, _ := parts[0].(string)
			order := Order{Field: field}
			if len(parts) == 2 {
				switch dir, _ := parts[1].(string); strings.ToLower(dir) {
				case "asc":
				case "desc":
					order.Descending = true
				default:
					return nil, errors.Wrapf(ErrInvalidQuery, "unknown direction %v", parts[1])
				}
			}
			q.OrderBy = append(q.OrderBy, order)
		}
	}

	if q.Limit, err = parseInt(raw, "limit"); err != nil {
		return nil, err
	}
	if q.StartAt, err = parseInt(raw, "startAt"); err != nil {
		return nil, err
	}
	return
}

func parseInt(raw map[string]interface{}, key string) (int, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return 0, nil
	}
	switch n := v.(type) {
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, errors.Wrapf(ErrInvalidQuery, "%s is not a number", key)
		}
		return i, nil
	default:
		f, ok := toFloat(v)
		if !ok || f != float64(int(f)) {
			return 0, errors.Wrapf(ErrInvalidQuery, "%s is not an integer", key)
		}
		return int(f), nil
	}
}

// normalizeList accepts a list, or a map with consecutive integer keys from a nested
// query string, and returns it as a list.
func normalizeList(v interface{}) ([]interface{}, bool) {
	switch lv := v.(type) {
	case []interface{}:
		return lv, true
	case map[string]interface{}:
		out := make([]interface{}, len(lv))
		for k, x := range lv {
			i, err := strconv.Atoi(k)
			if err != nil || i < 0 || i >= len(lv) {
				return nil, false
			}
			out[i] = x
		}
		return out, true
	default:
		return nil, false
	}
}

// apply filters, sorts and pages records.
func (q *Query) apply(records []*Record) []*Record {
	type row struct {
		record *Record
		q      *jsonq.JsonQuery
	}

	rows := make([]row, 0, len(records))
	for _, r := range records {
		jq := jsonq.NewQuery(r.fields())
		if q.match(jq) {
			rows = append(rows, row{record: r, q: jq})
		}
	}

	if len(q.OrderBy) > 0 {
		sort.SliceStable(rows, func(i, j int) bool {
			for _, o := range q.OrderBy {
				a, _ := lookup(rows[i].q, o.Field)
				b, _ := lookup(rows[j].q, o.Field)
				c, ok := compare(a, b)
				if !ok || c == 0 {
					continue
				}
				if o.Descending {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}

	start := 0
	if q.StartAt > 1 {
		start = q.StartAt - 1
	}
	if start >= len(rows) {
		return nil
	}
	rows = rows[start:]
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}

	out := make([]*Record, len(rows))
	for i := range rows {
		out[i] = rows[i].record
	}
	return out
}

func (q *Query) match(jq *jsonq.JsonQuery) bool {
	for _, c := range q.Where {
		v, ok := lookup(jq, c.Field)
		if !ok {
			return false
		}
		if !c.match(v) {
			return false
		}
	}
	return true
}

func (c *Condition) match(v interface{}) bool {
	if c.Operator == OpIn {
		list := reflect.ValueOf(c.Value)
		for i := 0; i < list.Len(); i++ {
			if r, ok := compare(v, list.Index(i).Interface()); ok && r == 0 {
				return true
			}
		}
		return false
	}

	r, ok := compare(v, c.Value)
	if !ok {
		return false
	}
	switch c.Operator {
	case OpEqual:
		return r == 0
	case OpLess:
		return r < 0
	case OpLessEqual:
		return r <= 0
	case OpGreater:
		return r > 0
	case OpGreaterEqual:
		return r >= 0
	}
	return false
}

func lookup(jq *jsonq.JsonQuery, field string) (interface{}, bool) {
	v, err := jq.Interface(strings.Split(field, ".")...)
	if err != nil {
		return nil, false
	}
	return v, true
}

// compare orders two scalar values. Numbers compare numerically whatever their Go type,
// and a numeric string compares with a number, since query strings carry no types.
func compare(a, b interface{}) (int, bool) {
	_, as := a.(string)
	_, bs := b.(string)
	if !as || !bs {
		if fa, ok := toFloat(a); ok {
			if fb, ok := toFloat(b); ok {
				return compareFloat(fa, fb), true
			}
		}
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			if s, sok := b.(string); sok {
				bv, ok = s == "true", s == "true" || s == "false"
			}
		}
		if !ok {
			return 0, false
		}
		if av == bv {
			return 0, true
		}
		if !av {
			return -1, true
		}
		return 1, true
	case nil:
		if b == nil {
			return 0, true
		}
	}
	return 0, false
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func (c Condition) String() string {
	return fmt.Sprintf("%s %s %v", c.Field, c.Operator, c.Value)
}
