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

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/pkg/errors"
	"github.com/sourcegraph/jsonrpc2"
	validator "gopkg.in/go-playground/validator.v9"

	"github.com/dashevo/drive/core"
	"github.com/dashevo/drive/metric"
	"github.com/dashevo/drive/stateview"
	"github.com/dashevo/drive/types"
	"github.com/dashevo/drive/utils/log"
)

const paramsKey = "_params"

var validate = validator.New()

// Application error codes, outside the range reserved by JSON-RPC.
const (
	CodeMissingChainLock = -32001
	CodeRequestCanceled  = -32002
)

// HandlerFunc handles one JSON-RPC request.
type HandlerFunc func(context.Context, *jsonrpc2.Conn, *jsonrpc2.Request) (interface{}, error)

// Validator is designed for params checking.
type Validator interface {
	Validate() error
}

// JSONRPCHandler is a handler handling JSON-RPC protocol.
//
// Every request runs on its own goroutine so long polls like waitForChainLockedHeight
// do not stall the connection read loop.
type JSONRPCHandler struct {
	methods map[string]HandlerFunc
}

// NewJSONRPCHandler creates a new JSONRPCHandler.
func NewJSONRPCHandler() *JSONRPCHandler {
	return &JSONRPCHandler{
		methods: make(map[string]HandlerFunc),
	}
}

// RegisterMethod registers a method. When paramsType is not nil the request params are
// decoded into a new value of its type, validated and passed through the context.
func (h *JSONRPCHandler) RegisterMethod(method string, fn HandlerFunc, paramsType interface{}) {
	log.WithField("method", method).Debug("api: register rpc method")

	if paramsType == nil {
		h.methods[method] = fn
		return
	}

	typ := reflect.TypeOf(paramsType)
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	h.methods[method] = processParams(fn, typ)
}

// Handler returns a jsonrpc2.Handler.
func (h *JSONRPCHandler) Handler() jsonrpc2.Handler {
	return h
}

// Handle implements jsonrpc2.Handler.
func (h *JSONRPCHandler) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	go h.reply(ctx, conn, req)
}

func (h *JSONRPCHandler) reply(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	start := time.Now()
	result, err := h.handle(ctx, conn, req)

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metric.APIRequests.WithLabelValues(req.Method, outcome).Inc()
	log.WithFields(log.Fields{
		"method":  req.Method,
		"elapsed": time.Since(start).String(),
	}).WithError(err).Debug("api: handled request")

	if req.Notif {
		return
	}
	if err != nil {
		if rerr := conn.ReplyWithError(ctx, req.ID, toRPCError(err)); rerr != nil {
			log.WithError(rerr).Debug("api: send error reply failed")
		}
		return
	}
	if rerr := conn.Reply(ctx, req.ID, result); rerr != nil {
		log.WithError(rerr).Debug("api: send reply failed")
	}
}

func methodNotFound(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
	return nil, &jsonrpc2.Error{
		Code:    jsonrpc2.CodeMethodNotFound,
		Message: fmt.Sprintf("method not found: %q", req.Method),
	}
}

func (h *JSONRPCHandler) handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (
	result interface{}, err error,
) {
	defer func() {
		if p := recover(); p != nil {
			switch p := p.(type) {
			case error:
				err = p
			default:
				err = fmt.Errorf("%v", p)
			}
			log.WithField("method", req.Method).WithError(err).Error("api: handler panicked")
		}
	}()

	fn := h.methods[req.Method]
	if fn == nil {
		fn = methodNotFound
	}
	return fn(ctx, conn, req)
}

// processParams decodes req.Params, a JSON object or a positional JSON array, into a new
// value of paramsType.
func processParams(h HandlerFunc, paramsType reflect.Type) HandlerFunc {
	return func(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (
		result interface{}, err error,
	) {
		paramsNew := reflect.New(paramsType)
		if req.Params != nil {
			if err = decodeParams(*req.Params, paramsNew); err != nil {
				return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
			}
		}

		params := paramsNew.Interface()
		if err = validate.Struct(params); err != nil {
			return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
		}
		if t, ok := params.(Validator); ok {
			if err := t.Validate(); err != nil {
				return nil, &jsonrpc2.Error{
					Code:    jsonrpc2.CodeInvalidParams,
					Message: err.Error(),
				}
			}
		}

		ctx = context.WithValue(ctx, interface{}(paramsKey), params)
		return h(ctx, conn, req)
	}
}

func decodeParams(raw json.RawMessage, out reflect.Value) error {
	var probe interface{}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return err
	}
	if _, ok := probe.([]interface{}); !ok {
		return json.Unmarshal(raw, out.Interface())
	}

	// e.g. "[1, 10]" --> struct { From: 1, To: 10 }
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return err
	}
	elem := out.Elem()
	fields := make([]reflect.Value, 0, elem.NumField())
	for i := 0; i < elem.NumField(); i++ {
		if elem.Type().Field(i).PkgPath != "" {
			continue
		}
		fields = append(fields, elem.Field(i))
	}
	if len(items) > len(fields) {
		return fmt.Errorf("unexpected parameters, expected at most %d but got %d",
			len(fields), len(items))
	}
	for i, item := range items {
		if err := json.Unmarshal(item, fields[i].Addr().Interface()); err != nil {
			return err
		}
	}
	return nil
}

func toRPCError(err error) *jsonrpc2.Error {
	var rerr *jsonrpc2.Error
	switch {
	case errors.As(err, &rerr):
		return rerr
	case errors.Is(err, stateview.ErrInvalidQuery):
		return &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
	case errors.Is(err, core.ErrMissingChainLock):
		return &jsonrpc2.Error{Code: CodeMissingChainLock, Message: err.Error()}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &jsonrpc2.Error{Code: CodeRequestCanceled, Message: err.Error()}
	case types.IsProtocolViolation(err):
		return &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidRequest, Message: err.Error()}
	default:
		return &jsonrpc2.Error{Code: jsonrpc2.CodeInternalError, Message: err.Error()}
	}
}
