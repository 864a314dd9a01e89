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

// Package api serves the materialized state over websocket JSON-RPC and a small REST surface.
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	qs "github.com/derekstavis/go-qs"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
	"github.com/sourcegraph/jsonrpc2"
	wsstream "github.com/sourcegraph/jsonrpc2/websocket"

	"github.com/dashevo/drive/metric"
	"github.com/dashevo/drive/stateview"
	"github.com/dashevo/drive/utils/log"
)

const shutdownTimeout = 5 * time.Second

// Service configs the API service.
type Service struct {
	ListenAddr   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// WaitTimeout bounds waitForChainLockedHeight, zero means no bound.
	WaitTimeout time.Duration

	docs  DocumentFetcher
	locks ChainLockSource
	gate  HeightWaiter
	flags FlagGetter
	rpc   *JSONRPCHandler
}

// NewService returns a service answering from docs, locks and gate.
func NewService(listenAddr string, docs DocumentFetcher, locks ChainLockSource, gate HeightWaiter) *Service {
	s := &Service{
		ListenAddr: listenAddr,
		docs:       docs,
		locks:      locks,
		gate:       gate,
		rpc:        NewJSONRPCHandler(),
	}
	s.rpc.RegisterMethod("fetchDocuments", s.fetchDocuments, fetchDocumentsParams{})
	s.rpc.RegisterMethod("fetchContract", s.fetchContract, fetchContractParams{})
	s.rpc.RegisterMethod("getChainLock", s.getChainLock, nil)
	s.rpc.RegisterMethod("waitForChainLockedHeight", s.waitForChainLockedHeight, waitForChainLockedHeightParams{})
	return s
}

// Router returns the http routes of the service.
func (s *Service) Router() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", metric.Handler())
	r.Handle("/debug/metrics", metric.RuntimeHandler())

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/documents/{contractId}/{type}", s.serveDocuments).Methods(http.MethodGet)
	v1.HandleFunc("/contracts/{contractId}", s.serveContract).Methods(http.MethodGet)
	v1.HandleFunc("/chainlock", s.serveChainLock).Methods(http.MethodGet)

	r.HandleFunc("/", s.serveWebsocket)
	return r
}

// Handler returns the router with CORS headers for browser clients of the REST surface.
func (s *Service) Handler() http.Handler {
	return handlers.CORS(
		handlers.AllowedHeaders([]string{"Content-Type"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
	)(s.Router())
}

// Serve listens on ListenAddr and serves until ctx is done.
func (s *Service) Serve(ctx context.Context) (err error) {
	listener, err := net.Listen("tcp", s.ListenAddr)
	if err != nil {
		return errors.Wrapf(err, "bind api address %s failed", s.ListenAddr)
	}
	return s.ServeListener(ctx, listener)
}

// ServeListener serves on listener until ctx is done, then shuts down gracefully.
func (s *Service) ServeListener(ctx context.Context, listener net.Listener) (err error) {
	httpServer := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.ReadTimeout,
		WriteTimeout: s.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	log.WithField("addr", listener.Addr().String()).Info("api: start server")
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(listener)
	}()

	select {
	case err = <-errCh:
		return errors.Wrap(err, "api server stopped")
	case <-ctx.Done():
	}

	log.Warning("api: shutdown server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err = httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("api: shutdown server failed")
		return errors.Wrap(err, "shutdown api server failed")
	}
	if err = <-errCh; err == http.ErrServerClosed {
		err = nil
	}
	log.Warning("api: server stopped")
	return
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

func (s *Service) serveWebsocket(rw http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		log.WithError(err).Error("api: upgrade http connection to websocket failed")
		return
	}
	defer conn.Close()

	id := uuid.Must(uuid.NewV4()).String()
	entry := log.WithFields(log.Fields{"conn": id, "remote": r.RemoteAddr})
	entry.Debug("api: received incoming connection")
	rpcConn := jsonrpc2.NewConn(
		r.Context(),
		wsstream.NewObjectStream(conn),
		s.rpc.Handler(),
	)
	select {
	case <-rpcConn.DisconnectNotify():
	case <-r.Context().Done():
		// hijacked connections outlive http.Server.Shutdown
		_ = rpcConn.Close()
	}
	entry.Debug("api: connection closed")
}

func (s *Service) serveDocuments(rw http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	options := map[string]interface{}{}
	if len(r.URL.Query()) > 0 {
		var err error
		if options, err = qs.Unmarshal(r.URL.Query().Encode()); err != nil {
			s.writeError(rw, "fetchDocuments", errors.Wrap(stateview.ErrInvalidQuery, err.Error()))
			return
		}
	}
	q, err := stateview.ParseQuery(options)
	if err != nil {
		s.writeError(rw, "fetchDocuments", err)
		return
	}
	docs, err := s.findDocuments(r.Context(), vars["contractId"], vars["type"], q)
	if err != nil {
		s.writeError(rw, "fetchDocuments", err)
		return
	}
	s.writeJSON(rw, "fetchDocuments", http.StatusOK, docs)
}

func (s *Service) serveContract(rw http.ResponseWriter, r *http.Request) {
	doc, err := s.findContract(r.Context(), mux.Vars(r)["contractId"])
	if err != nil {
		s.writeError(rw, "fetchContract", err)
		return
	}
	if doc == nil {
		s.writeJSON(rw, "fetchContract", http.StatusNotFound, errorBody{Message: "contract not found"})
		return
	}
	s.writeJSON(rw, "fetchContract", http.StatusOK, doc)
}

func (s *Service) serveChainLock(rw http.ResponseWriter, r *http.Request) {
	lock, ok := s.locks.ChainLock()
	if !ok {
		s.writeJSON(rw, "getChainLock", http.StatusNotFound, errorBody{Message: "no chain lock observed yet"})
		return
	}
	s.writeJSON(rw, "getChainLock", http.StatusOK, &lock)
}

type errorBody struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message"`
}

func (s *Service) writeError(rw http.ResponseWriter, method string, err error) {
	rerr := toRPCError(err)
	status := http.StatusInternalServerError
	if rerr.Code == jsonrpc2.CodeInvalidParams || rerr.Code == jsonrpc2.CodeInvalidRequest {
		status = http.StatusBadRequest
	}
	s.writeJSON(rw, method, status, errorBody{Code: int(rerr.Code), Message: rerr.Message})
}

func (s *Service) writeJSON(rw http.ResponseWriter, method string, status int, v interface{}) {
	outcome := "ok"
	if status >= http.StatusBadRequest {
		outcome = "error"
	}
	metric.APIRequests.WithLabelValues(strings.Join([]string{"rest", method}, ":"), outcome).Inc()

	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	if err := json.NewEncoder(rw).Encode(v); err != nil {
		log.WithError(err).Debug("api: write response failed")
	}
}
