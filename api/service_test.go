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

package api_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/sourcegraph/jsonrpc2"
	wsstream "github.com/sourcegraph/jsonrpc2/websocket"

	"github.com/dashevo/drive/api"
	"github.com/dashevo/drive/core"
	"github.com/dashevo/drive/crypto/hash"
	"github.com/dashevo/drive/featureflag"
	"github.com/dashevo/drive/stateview"
	"github.com/dashevo/drive/storage"
	"github.com/dashevo/drive/types"
)

const testContract = "contract-1"

func setupWebsocketClient(addr string) (client *jsonrpc2.Conn, err error) {
	var dial = func(ctx context.Context, addr string) (client *jsonrpc2.Conn, err error) {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
		if err != nil {
			return nil, err
		}
		return jsonrpc2.NewConn(
			context.Background(),
			wsstream.NewObjectStream(conn),
			nil,
		), nil
	}

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		client, err = dial(ctx, addr)
		cancel()
		if err == nil {
			break
		}
	}
	return
}

func storeRecords(ctx context.Context, repo *stateview.Repository, records ...*stateview.Record) error {
	return repo.Tx(ctx, func(tx *sql.Tx) error {
		for _, rec := range records {
			if err := repo.StoreTx(ctx, tx, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

func note(id string, rank int, title string) *stateview.Record {
	return &stateview.Record{
		ContainerID: testContract,
		OwnerID:     "alice",
		Current: &types.Document{
			ID:       id,
			Type:     "note",
			Action:   types.ActionCreate,
			Revision: 0,
			Data:     map[string]interface{}{"rank": rank, "title": title},
		},
		Reference: types.Reference{
			BlockHash:      hash.HashH([]byte("block:" + id)),
			BlockHeight:    uint32(rank),
			TransitionHash: hash.HashH([]byte("st:" + id)),
		},
	}
}

type testEnv struct {
	dir     string
	db      *storage.SQLite3
	tracker *core.ChainLockTracker
	server  *httptest.Server
	wsAddr  string
}

func newTestEnv(ctx context.Context) (env *testEnv, err error) {
	env = &testEnv{tracker: core.NewChainLockTracker()}
	if env.dir, err = ioutil.TempDir("", "drive-api"); err != nil {
		return
	}
	if env.db, err = storage.NewSqlite(filepath.Join(env.dir, "api.db")); err != nil {
		return
	}
	repo, err := stateview.NewRepository(ctx, env.db)
	if err != nil {
		return
	}

	deleted := note("n4", 4, "gone")
	deleted.IsDeleted = true
	contract := &stateview.Record{
		ContainerID: testContract,
		OwnerID:     "alice",
		Current:     &types.Document{ID: testContract, Type: types.ContractType, Action: types.ActionCreate},
	}
	flag := &stateview.Record{
		ContainerID: testContract,
		Current: &types.Document{
			ID:     "flag-1",
			Type:   "fixCumulativeFees",
			Action: types.ActionCreate,
			Data:   map[string]interface{}{featureflag.EnableAtHeightField: 10},
		},
	}
	if err = storeRecords(ctx, repo,
		note("n1", 1, "first"), note("n2", 2, "second"), note("n3", 3, "third"), deleted, contract, flag,
	); err != nil {
		return
	}

	svc := api.NewService("", repo, env.tracker, core.NewFinalityGate(env.tracker)).
		WithFeatureFlags(featureflag.NewGetter(testContract, repo))
	env.server = httptest.NewServer(svc.Handler())
	env.wsAddr = "ws" + strings.TrimPrefix(env.server.URL, "http")
	return
}

func (env *testEnv) close() {
	if env.server != nil {
		env.server.Close()
	}
	if env.db != nil {
		env.db.Close()
	}
	os.RemoveAll(env.dir)
}

func (env *testEnv) getJSON(path string, out interface{}) (status int, err error) {
	resp, err := http.Get(env.server.URL + path)
	if err != nil {
		return
	}
	defer resp.Body.Close()
	status = resp.StatusCode
	err = json.NewDecoder(resp.Body).Decode(out)
	return
}

func ids(docs []map[string]interface{}) (out []string) {
	for _, d := range docs {
		out = append(out, d["id"].(string))
	}
	return
}

func TestJSONRPCService(t *testing.T) {
	Convey("websocket JSON-RPC", t, func() {
		ctx := context.Background()
		env, err := newTestEnv(ctx)
		So(err, ShouldBeNil)
		Reset(env.close)

		client, err := setupWebsocketClient(env.wsAddr)
		So(err, ShouldBeNil)
		Reset(func() { client.Close() })

		Convey("call method should fail if method not found", func() {
			var result interface{}
			err := client.Call(ctx, "method_NotFound", nil, &result)
			So(err, ShouldNotBeNil)
			rerr, ok := err.(*jsonrpc2.Error)
			So(ok, ShouldBeTrue)
			So(rerr.Code, ShouldEqual, jsonrpc2.CodeMethodNotFound)
		})

		Convey("fetchDocuments filters, orders and pages live records", func() {
			var docs []map[string]interface{}
			err := client.Call(ctx, "fetchDocuments", map[string]interface{}{
				"contractId": testContract,
				"type":       "note",
				"options": map[string]interface{}{
					"where":   [][]interface{}{{"rank", ">=", 2}},
					"orderBy": [][]interface{}{{"rank", "desc"}},
				},
			}, &docs)
			So(err, ShouldBeNil)
			So(ids(docs), ShouldResemble, []string{"n3", "n2"})
			meta := docs[0]["$meta"].(map[string]interface{})
			So(meta["userId"], ShouldEqual, "alice")
			So(meta["blockHeight"], ShouldEqual, 3.0)
		})

		Convey("fetchDocuments accepts positional params", func() {
			var docs []map[string]interface{}
			err := client.Call(ctx, "fetchDocuments", []interface{}{testContract, "note"}, &docs)
			So(err, ShouldBeNil)
			So(ids(docs), ShouldResemble, []string{"n1", "n2", "n3"})

			err = client.Call(ctx, "fetchDocuments", []interface{}{
				testContract, "note", map[string]interface{}{"limit": 1},
			}, &docs)
			So(err, ShouldBeNil)
			So(ids(docs), ShouldResemble, []string{"n1"})

			err = client.Call(ctx, "fetchDocuments", []interface{}{
				testContract, "note", map[string]interface{}{}, "extra",
			}, &docs)
			So(err, ShouldNotBeNil)
			So(err.(*jsonrpc2.Error).Code, ShouldEqual, jsonrpc2.CodeInvalidParams)
		})

		Convey("fetchDocuments rejects invalid params", func() {
			var docs []map[string]interface{}
			err := client.Call(ctx, "fetchDocuments", map[string]interface{}{"contractId": testContract}, &docs)
			So(err, ShouldNotBeNil)
			So(err.(*jsonrpc2.Error).Code, ShouldEqual, jsonrpc2.CodeInvalidParams)

			err = client.Call(ctx, "fetchDocuments", map[string]interface{}{
				"contractId": testContract,
				"type":       "note",
				"options":    map[string]interface{}{"limit": 1000},
			}, &docs)
			So(err, ShouldNotBeNil)
			So(err.(*jsonrpc2.Error).Code, ShouldEqual, jsonrpc2.CodeInvalidParams)
		})

		Convey("fetchContract returns the contract or null", func() {
			var doc map[string]interface{}
			err := client.Call(ctx, "fetchContract", map[string]interface{}{"contractId": testContract}, &doc)
			So(err, ShouldBeNil)
			So(doc["id"], ShouldEqual, testContract)
			So(doc["type"], ShouldEqual, types.ContractType)

			var missing map[string]interface{}
			err = client.Call(ctx, "fetchContract", map[string]interface{}{"contractId": "nope"}, &missing)
			So(err, ShouldBeNil)
			So(missing, ShouldBeNil)
		})

		Convey("getFeatureFlag resolves flags by activation height", func() {
			var doc map[string]interface{}
			err := client.Call(ctx, "getFeatureFlag", map[string]interface{}{"type": "fixCumulativeFees", "height": 10}, &doc)
			So(err, ShouldBeNil)
			So(doc["id"], ShouldEqual, "flag-1")

			var missing map[string]interface{}
			err = client.Call(ctx, "getFeatureFlag", []interface{}{"fixCumulativeFees", 11}, &missing)
			So(err, ShouldBeNil)
			So(missing, ShouldBeNil)
		})

		Convey("chain lock methods", func() {
			var lock *types.ChainLock
			So(client.Call(ctx, "getChainLock", nil, &lock), ShouldBeNil)
			So(lock, ShouldBeNil)

			var result interface{}
			err := client.Call(ctx, "waitForChainLockedHeight", map[string]interface{}{"height": 5}, &result)
			So(err, ShouldNotBeNil)
			So(err.(*jsonrpc2.Error).Code, ShouldEqual, api.CodeMissingChainLock)

			err = client.Call(ctx, "waitForChainLockedHeight", map[string]interface{}{"height": 0}, &result)
			So(err, ShouldNotBeNil)
			So(err.(*jsonrpc2.Error).Code, ShouldEqual, jsonrpc2.CodeInvalidParams)

			env.tracker.Update(&types.ChainLock{Height: 5, BlockHash: hash.HashH([]byte("b5"))})
			So(client.Call(ctx, "getChainLock", nil, &lock), ShouldBeNil)
			So(lock.Height, ShouldEqual, 5)

			Convey("a covered height returns immediately", func() {
				var got types.ChainLock
				err := client.Call(ctx, "waitForChainLockedHeight", []interface{}{3}, &got)
				So(err, ShouldBeNil)
				So(got.Height, ShouldEqual, 5)
			})

			Convey("a future height blocks without stalling other calls", func() {
				done := make(chan error, 1)
				var got types.ChainLock
				go func() {
					done <- client.Call(ctx, "waitForChainLockedHeight", map[string]interface{}{"height": 8}, &got)
				}()

				var contract map[string]interface{}
				So(client.Call(ctx, "fetchContract", []interface{}{testContract}, &contract), ShouldBeNil)
				select {
				case <-done:
					t.Fatal("wait returned before the height was locked")
				default:
				}

				// the waiter registers asynchronously
				time.Sleep(50 * time.Millisecond)
				env.tracker.Update(&types.ChainLock{Height: 9, BlockHash: hash.HashH([]byte("b9"))})
				select {
				case err := <-done:
					So(err, ShouldBeNil)
					So(got.Height, ShouldEqual, 9)
				case <-time.After(5 * time.Second):
					t.Fatal("wait did not return")
				}
			})
		})
	})
}

func TestRESTService(t *testing.T) {
	Convey("REST endpoints", t, func() {
		ctx := context.Background()
		env, err := newTestEnv(ctx)
		So(err, ShouldBeNil)
		Reset(env.close)

		Convey("documents accept nested query strings", func() {
			values := url.Values{}
			values.Set("where[0][0]", "title")
			values.Set("where[0][1]", "==")
			values.Set("where[0][2]", "second")
			var docs []map[string]interface{}
			status, err := env.getJSON("/v1/documents/"+testContract+"/note?"+values.Encode(), &docs)
			So(err, ShouldBeNil)
			So(status, ShouldEqual, http.StatusOK)
			So(ids(docs), ShouldResemble, []string{"n2"})

			values = url.Values{}
			values.Set("orderBy[0][0]", "rank")
			values.Set("orderBy[0][1]", "desc")
			values.Set("limit", "2")
			values.Set("startAt", "2")
			status, err = env.getJSON("/v1/documents/"+testContract+"/note?"+values.Encode(), &docs)
			So(err, ShouldBeNil)
			So(status, ShouldEqual, http.StatusOK)
			So(ids(docs), ShouldResemble, []string{"n2", "n1"})
		})

		Convey("malformed queries are bad requests", func() {
			var body map[string]interface{}
			status, err := env.getJSON("/v1/documents/"+testContract+"/note?limit=ten", &body)
			So(err, ShouldBeNil)
			So(status, ShouldEqual, http.StatusBadRequest)
			So(body["message"], ShouldContainSubstring, "limit")
		})

		Convey("contracts and chain locks", func() {
			var body map[string]interface{}
			status, err := env.getJSON("/v1/contracts/"+testContract, &body)
			So(err, ShouldBeNil)
			So(status, ShouldEqual, http.StatusOK)
			So(body["id"], ShouldEqual, testContract)

			status, err = env.getJSON("/v1/contracts/unknown", &body)
			So(err, ShouldBeNil)
			So(status, ShouldEqual, http.StatusNotFound)

			status, err = env.getJSON("/v1/chainlock", &body)
			So(err, ShouldBeNil)
			So(status, ShouldEqual, http.StatusNotFound)

			env.tracker.Update(&types.ChainLock{Height: 7, BlockHash: hash.HashH([]byte("b7"))})
			var lock types.ChainLock
			status, err = env.getJSON("/v1/chainlock", &lock)
			So(err, ShouldBeNil)
			So(status, ShouldEqual, http.StatusOK)
			So(lock.Height, ShouldEqual, 7)
		})

		Convey("cross origin requests are allowed", func() {
			req, err := http.NewRequest(http.MethodGet, env.server.URL+"/v1/contracts/"+testContract, nil)
			So(err, ShouldBeNil)
			req.Header.Set("Origin", "http://wallet.example")
			resp, err := http.DefaultClient.Do(req)
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(resp.Header.Get("Access-Control-Allow-Origin"), ShouldNotBeEmpty)
		})

		Convey("metrics are exposed", func() {
			resp, err := http.Get(env.server.URL + "/metrics")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			body, err := ioutil.ReadAll(resp.Body)
			So(err, ShouldBeNil)
			So(string(body), ShouldContainSubstring, "go_goroutines")
		})
	})
}
