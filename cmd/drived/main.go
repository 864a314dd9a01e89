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

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/pkg/errors"

	"github.com/dashevo/drive/conf"
	"github.com/dashevo/drive/conf/testnet"
	"github.com/dashevo/drive/utils/log"
)

var (
	version = "1"
	commit  = "unknown"
	branch  = "unknown"
)

var (
	showVersion bool
	configFile  string
	network     string
	logLevel    string
)

const name = `drived`
const desc = `drived materializes application state from the state transitions of a chain`

func init() {
	flag.BoolVar(&showVersion, "version", false, "Show version information and exit")
	flag.StringVar(&configFile, "config", "", "Config file path")
	flag.StringVar(&network, "network", "", "Use the built-in config of a network, e.g. testnet")
	flag.StringVar(&logLevel, "log-level", "", "Override the configured log level")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "\n%s\n\n", desc)
		fmt.Fprintf(os.Stderr, "Usage: %s [arguments]\n", name)
		flag.PrintDefaults()
	}
}

func loadConfig() (*conf.Config, error) {
	switch {
	case configFile != "":
		return conf.LoadConfig(configFile)
	case network == "testnet":
		return testnet.GetTestNetConfig(), nil
	case network != "":
		return nil, errors.Wrapf(conf.ErrInvalidConfig, "unknown network %q", network)
	default:
		return conf.ParseConfig(nil)
	}
}

func main() {
	flag.Parse()

	if showVersion {
		fmt.Printf("%v %v %v %v %v\n",
			name, version, runtime.GOOS, runtime.GOARCH, runtime.Version())
		os.Exit(0)
	}

	flag.Visit(func(f *flag.Flag) {
		log.Infof("args %#v : %s", f.Name, f.Value)
	})

	cfg, err := loadConfig()
	if err != nil {
		log.WithField("config", configFile).WithError(err).Fatal("load config failed")
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	log.SetStringLevel(cfg.LogLevel, log.InfoLevel)
	log.SetStringFormat(cfg.LogFormat)

	log.Infof("%#v starting, version %#v, commit %#v, branch %#v", name, version, commit, branch)
	log.Infof("%#v, target architecture is %#v, operating system target is %#v", runtime.Version(), runtime.GOARCH, runtime.GOOS)
	log.Debugf("config:\n%#v", cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		sig := <-sigCh
		log.WithField("signal", sig.String()).Warning("received signal, stopping")
		cancel()
	}()

	if err = run(ctx, cfg); err != nil {
		log.WithError(err).Fatal("drive stopped with error")
	}

	log.Info("drive stopped")
}
