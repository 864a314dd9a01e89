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

// Package conf holds the node configuration loaded from YAML.
package conf

import (
	"io/ioutil"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"

	"github.com/dashevo/drive/utils"
	"github.com/dashevo/drive/utils/log"
)

// CoreInfo locates the consensus chain node.
type CoreInfo struct {
	// URL is the websocket JSON-RPC endpoint of the node.
	URL string `yaml:"URL"`
	// SyncCheckInterval is the poll period while the node is still syncing.
	SyncCheckInterval time.Duration `yaml:"SyncCheckInterval"`
	// SkipSyncCheck starts reading without waiting for the node to finish syncing.
	SkipSyncCheck bool `yaml:"SkipSyncCheck"`
}

// ReaderInfo configures the chain reader.
type ReaderInfo struct {
	StartHeight    uint32        `yaml:"StartHeight"`
	RetainedBlocks int           `yaml:"RetainedBlocks"`
	PollInterval   time.Duration `yaml:"PollInterval"`
	RetryBase      time.Duration `yaml:"RetryBase"`
	RetryMax       time.Duration `yaml:"RetryMax"`
	MaxRetries     uint64        `yaml:"MaxRetries"`
}

// StorageInfo configures local persistence.
type StorageInfo struct {
	// DatabaseFile is the sqlite file of records and reader state.
	DatabaseFile string `yaml:"DatabaseFile"`
	// PacketDir is the leveldb directory of packets.
	PacketDir string `yaml:"PacketDir"`
	// PacketCacheSize is the number of decoded packets kept in memory.
	PacketCacheSize int `yaml:"PacketCacheSize"`
}

// GatewayInfo configures the remote packet gateway. An empty URL disables it.
type GatewayInfo struct {
	URL        string        `yaml:"URL"`
	Timeout    time.Duration `yaml:"Timeout"`
	RetryBase  time.Duration `yaml:"RetryBase"`
	RetryMax   time.Duration `yaml:"RetryMax"`
	MaxRetries uint64        `yaml:"MaxRetries"`
}

// APIInfo configures the query service.
type APIInfo struct {
	ListenAddr string `yaml:"ListenAddr"`
	// RuntimeSampleInterval is the sampling period of the runtime gauges.
	RuntimeSampleInterval time.Duration `yaml:"RuntimeSampleInterval"`
	// WaitTimeout bounds waitForChainLockedHeight calls, zero waits until the client leaves.
	WaitTimeout time.Duration `yaml:"WaitTimeout"`
}

// Config holds all the config read from yaml config file.
type Config struct {
	WorkingRoot string `yaml:"WorkingRoot"`
	Network     string `yaml:"Network"`
	LogLevel    string `yaml:"LogLevel"`
	LogFormat   string `yaml:"LogFormat"`

	// FeatureFlagsContractID is the contract holding the feature flag documents.
	FeatureFlagsContractID string `yaml:"FeatureFlagsContractID"`

	Core    CoreInfo    `yaml:"Core"`
	Reader  ReaderInfo  `yaml:"Reader"`
	Storage StorageInfo `yaml:"Storage"`
	Gateway GatewayInfo `yaml:"Gateway"`
	API     APIInfo     `yaml:"API"`
}

// Default returns the configuration of a local regtest node.
func Default() *Config {
	return &Config{
		WorkingRoot: "~/.drive",
		Network:     "regtest",
		LogLevel:    "info",
		LogFormat:   "text",
		Core: CoreInfo{
			URL:               "ws://127.0.0.1:20002/ws",
			SyncCheckInterval: DefaultSyncCheckInterval,
		},
		Reader: ReaderInfo{
			StartHeight:    1,
			RetainedBlocks: DefaultRetainedBlocks,
			PollInterval:   DefaultPollInterval,
			RetryBase:      100 * time.Millisecond,
			RetryMax:       10 * time.Second,
			MaxRetries:     20,
		},
		Storage: StorageInfo{
			DatabaseFile:    "drive.db",
			PacketDir:       "packets",
			PacketCacheSize: DefaultPacketCacheSize,
		},
		Gateway: GatewayInfo{
			Timeout:    30 * time.Second,
			RetryBase:  200 * time.Millisecond,
			RetryMax:   5 * time.Second,
			MaxRetries: 10,
		},
		API: APIInfo{
			ListenAddr:            "127.0.0.1:6000",
			RuntimeSampleInterval: 10 * time.Second,
		},
	}
}

// LoadConfig loads config from configPath over the defaults.
func LoadConfig(configPath string) (config *Config, err error) {
	configBytes, err := ioutil.ReadFile(configPath)
	if err != nil {
		log.WithError(err).Error("read config file failed")
		return
	}
	return ParseConfig(configBytes)
}

// ParseConfig parses a YAML config over the defaults.
func ParseConfig(b []byte) (config *Config, err error) {
	config = Default()
	if err = yaml.Unmarshal(b, config); err != nil {
		log.WithError(err).Error("unmarshal config file failed")
		return nil, err
	}
	if err = config.Validate(); err != nil {
		return nil, err
	}
	config.resolvePaths()
	return
}

// Validate checks the fields that have no usable zero value.
func (c *Config) Validate() error {
	switch {
	case c.Core.URL == "":
		return errors.Wrap(ErrInvalidConfig, "Core.URL is empty")
	case c.Reader.RetainedBlocks <= 0:
		return errors.Wrap(ErrInvalidConfig, "Reader.RetainedBlocks must be positive")
	case c.Reader.PollInterval <= 0:
		return errors.Wrap(ErrInvalidConfig, "Reader.PollInterval must be positive")
	case c.Storage.DatabaseFile == "" || c.Storage.PacketDir == "":
		return errors.Wrap(ErrInvalidConfig, "storage paths are empty")
	case c.API.ListenAddr == "":
		return errors.Wrap(ErrInvalidConfig, "API.ListenAddr is empty")
	}
	return nil
}

func (c *Config) resolvePaths() {
	c.WorkingRoot = utils.HomeDirExpand(c.WorkingRoot)
	c.Storage.DatabaseFile = c.resolve(c.Storage.DatabaseFile)
	c.Storage.PacketDir = c.resolve(c.Storage.PacketDir)
}

func (c *Config) resolve(path string) string {
	path = utils.HomeDirExpand(path)
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.WorkingRoot, path)
}
