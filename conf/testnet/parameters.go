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

// Package testnet contains the parameters of the public test network.
package testnet

import (
	"github.com/dashevo/drive/conf"
	"github.com/dashevo/drive/utils/log"
)

const (
	// DriveConfigYAML is the config string in YAML format of the test network.
	DriveConfigYAML = `
Network: testnet
FeatureFlagsContractID: 8ACXVN5FcZkPoTuFZDEgexusj3h56DTEZKbRxEFAqtue
Core:
  URL: ws://127.0.0.1:19998/ws
  SyncCheckInterval: 10s
Reader:
  StartHeight: 1
  RetainedBlocks: 100
Gateway:
  URL: http://127.0.0.1:8080
`
)

// GetTestNetConfig parses and returns the test network config.
func GetTestNetConfig() (config *conf.Config) {
	var err error
	if config, err = conf.ParseConfig([]byte(DriveConfigYAML)); err != nil {
		log.WithError(err).Fatal("failed to unmarshal testnet config")
	}
	return
}
