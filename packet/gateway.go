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
	"context"
	"io"
	"io/ioutil"
	"net/http"
	"strings"
	"time"

	"github.com/dghubble/sling"
	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"

	"github.com/dashevo/drive/types"
	"github.com/dashevo/drive/utils"
	"github.com/dashevo/drive/utils/log"
)

const maxPacketSize = 16 << 20

// GatewayConfig configures a Gateway.
type GatewayConfig struct {
	URL        string
	Timeout    time.Duration
	RetryBase  time.Duration
	RetryMax   time.Duration
	MaxRetries uint64
}

// Gateway fetches raw packets from an HTTP content gateway at URL/ipfs/<cid>.
type Gateway struct {
	cfg    GatewayConfig
	client *http.Client
	base   *sling.Sling
}

// NewGateway returns a gateway client.
func NewGateway(cfg GatewayConfig) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 200 * time.Millisecond
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	client := &http.Client{Timeout: cfg.Timeout}
	return &Gateway{
		cfg:    cfg,
		client: client,
		base:   sling.New().Client(client).Base(cfg.URL + "/"),
	}
}

// Get implements Remote. Unreachable gateways and server errors are retried; a missing
// packet is reported as ErrNotFound.
func (g *Gateway) Get(ctx context.Context, c cid.Cid) (raw []byte, err error) {
	b, err := utils.NewBackoff(g.cfg.RetryBase, g.cfg.RetryMax, g.cfg.MaxRetries)
	if err != nil {
		return
	}
	err = utils.RetryTransient(ctx, b, func(ctx context.Context) (ierr error) {
		raw, ierr = g.get(ctx, c)
		return
	}, func(err error) {
		log.WithError(err).WithField("cid", c.String()).Debug("packet: gateway failure, retrying")
	})
	return
}

func (g *Gateway) get(ctx context.Context, c cid.Cid) ([]byte, error) {
	req, err := g.base.New().Get("ipfs/" + c.String()).Request()
	if err != nil {
		return nil, errors.Wrap(err, "build gateway request failed")
	}
	resp, err := g.client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, types.AsTransient(errors.Wrap(err, "gateway request failed"))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.Wrap(ErrNotFound, c.String())
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, types.AsTransient(errors.Errorf("gateway responded %s", resp.Status))
	case resp.StatusCode != http.StatusOK:
		return nil, errors.Errorf("gateway responded %s", resp.Status)
	}

	raw, err := ioutil.ReadAll(io.LimitReader(resp.Body, maxPacketSize+1))
	if err != nil {
		return nil, types.AsTransient(errors.Wrap(err, "read gateway response failed"))
	}
	if len(raw) > maxPacketSize {
		return nil, errors.Errorf("packet %s exceeds %d bytes", c.String(), maxPacketSize)
	}
	return raw, nil
}
