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

// Package rpc is a JSON-RPC 2.0 client of the consensus chain node. Requests and the
// rawchainlock/hashblock notification feed share one websocket connection.
package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sourcegraph/jsonrpc2"
	wsstream "github.com/sourcegraph/jsonrpc2/websocket"

	"github.com/dashevo/drive/crypto/hash"
	"github.com/dashevo/drive/types"
	"github.com/dashevo/drive/utils/log"
)

const (
	// TopicRawChainLock delivers chain locks as they are observed.
	TopicRawChainLock = "rawchainlock"
	// TopicHashBlock delivers hashes of new blocks.
	TopicHashBlock = "hashblock"
)

// NotificationFunc receives the raw params of a node notification.
// It runs on the connection read loop and must not call back into the client.
type NotificationFunc func(params json.RawMessage)

// Client is the chain node JSON-RPC client.
type Client struct {
	conn *jsonrpc2.Conn

	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]NotificationFunc
}

// Dial connects to the node websocket endpoint at url.
func Dial(ctx context.Context, url string, header http.Header) (c *Client, err error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		err = types.AsTransient(errors.Wrapf(err, "dial %s failed", url))
		return
	}
	log.WithField("url", url).Debug("rpc: connected to chain node")
	return NewClient(ctx, wsstream.NewObjectStream(conn)), nil
}

// NewClient returns a client speaking over stream.
func NewClient(ctx context.Context, stream jsonrpc2.ObjectStream) *Client {
	c := &Client{
		subs: make(map[string]map[uint64]NotificationFunc),
	}
	c.conn = jsonrpc2.NewConn(ctx, stream, c)
	return c
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// DisconnectNotify is closed once the connection is gone.
func (c *Client) DisconnectNotify() <-chan struct{} {
	return c.conn.DisconnectNotify()
}

// Handle implements jsonrpc2.Handler for notifications pushed by the node.
func (c *Client) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	if !req.Notif {
		if err := conn.ReplyWithError(ctx, req.ID, &jsonrpc2.Error{
			Code:    jsonrpc2.CodeMethodNotFound,
			Message: ErrUnexpectedRequest.Error(),
		}); err != nil {
			log.WithError(err).Debug("rpc: reply to node request failed")
		}
		return
	}

	var params json.RawMessage
	if req.Params != nil {
		params = *req.Params
	}

	c.mu.RLock()
	fns := make([]NotificationFunc, 0, len(c.subs[req.Method]))
	for _, fn := range c.subs[req.Method] {
		fns = append(fns, fn)
	}
	c.mu.RUnlock()

	for _, fn := range fns {
		fn(params)
	}
}

// Subscribe registers fn for notifications of topic and returns its cancel function.
func (c *Client) Subscribe(topic string, fn NotificationFunc) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	if c.subs[topic] == nil {
		c.subs[topic] = make(map[uint64]NotificationFunc)
	}
	c.subs[topic][id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs[topic], id)
	}
}

// OnChainLock registers fn for every chain lock pushed by the node.
func (c *Client) OnChainLock(fn func(*types.ChainLock)) (cancel func()) {
	return c.Subscribe(TopicRawChainLock, func(params json.RawMessage) {
		lock := &types.ChainLock{}
		if err := decodeParam(params, lock); err != nil {
			log.WithError(err).Warning("rpc: drop malformed chain lock notification")
			return
		}
		fn(lock)
	})
}

// OnBlock registers fn for every new block hash pushed by the node.
func (c *Client) OnBlock(fn func(hash.Hash)) (cancel func()) {
	return c.Subscribe(TopicHashBlock, func(params json.RawMessage) {
		var h hash.Hash
		if err := decodeParam(params, &h); err != nil {
			log.WithError(err).Warning("rpc: drop malformed block notification")
			return
		}
		fn(h)
	})
}

// decodeParam accepts a bare value or a positional array holding it.
func decodeParam(raw json.RawMessage, out interface{}) error {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return err
		}
		if len(list) == 0 {
			return errors.New("empty notification params")
		}
		raw = list[0]
	}
	return json.Unmarshal(raw, out)
}

func (c *Client) call(ctx context.Context, method string, params, result interface{}) (err error) {
	if err = c.conn.Call(ctx, method, params, result); err == nil {
		return
	}
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	if rerr, ok := err.(*jsonrpc2.Error); ok {
		if rerr.Code == codeNotFound || rerr.Code == codeOutOfRange || (rerr.Code == jsonrpc2.CodeInternalError &&
			strings.Contains(strings.ToLower(rerr.Message), "not found")) {
			return errors.Wrapf(ErrNotFound, "%s: %s", method, rerr.Message)
		}
		return errors.Wrapf(rerr, "%s failed", method)
	}
	return types.AsTransient(errors.Wrapf(err, "%s failed", method))
}

// GetBlockCount returns the height of the chain tip.
func (c *Client) GetBlockCount(ctx context.Context) (height uint32, err error) {
	err = c.call(ctx, "getblockcount", []interface{}{}, &height)
	return
}

// GetBlockHash returns the hash of the canonical block at height.
func (c *Client) GetBlockHash(ctx context.Context, height uint32) (h hash.Hash, err error) {
	err = c.call(ctx, "getblockhash", []interface{}{height}, &h)
	return
}

// GetBlock returns the block with hash h.
func (c *Client) GetBlock(ctx context.Context, h hash.Hash) (b *types.Block, err error) {
	b = &types.Block{}
	if err = c.call(ctx, "getblock", []interface{}{h.String()}, b); err != nil {
		return nil, err
	}
	return
}

// GetRawTransaction returns the decoded transaction with id h.
func (c *Client) GetRawTransaction(ctx context.Context, h hash.Hash) (tx *types.Transaction, err error) {
	tx = &types.Transaction{}
	if err = c.call(ctx, "getrawtransaction", []interface{}{h.String(), 1}, tx); err != nil {
		return nil, err
	}
	return
}

// GetBestChainLock returns the best chain lock known to the node.
func (c *Client) GetBestChainLock(ctx context.Context) (lock *types.ChainLock, err error) {
	lock = &types.ChainLock{}
	if err = c.call(ctx, "getbestchainlock", []interface{}{}, lock); err != nil {
		return nil, err
	}
	return
}

// GetBlockchainInfo returns the chain name and sync counters.
func (c *Client) GetBlockchainInfo(ctx context.Context) (info *BlockchainInfo, err error) {
	info = &BlockchainInfo{}
	if err = c.call(ctx, "getblockchaininfo", []interface{}{}, info); err != nil {
		return nil, err
	}
	return
}

// GetPeerInfo lists the connected peers.
func (c *Client) GetPeerInfo(ctx context.Context) (peers []PeerInfo, err error) {
	err = c.call(ctx, "getpeerinfo", []interface{}{}, &peers)
	return
}

// GetMnSyncStatus returns the masternode sync status.
func (c *Client) GetMnSyncStatus(ctx context.Context) (status *MnSyncStatus, err error) {
	status = &MnSyncStatus{}
	if err = c.call(ctx, "mnsync", []interface{}{"status"}, status); err != nil {
		return nil, err
	}
	return
}
