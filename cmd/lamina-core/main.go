// Copyright 2021 - 2023 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command lamina-core wires the buffer pyramid, privilege graph, and
// catalog lock manager together into a standalone process. It does
// not parse SQL, accept connections, or run an importer; those are
// external collaborators per the core's own design.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/laminadb/lamina/pkg/catalog"
	"github.com/laminadb/lamina/pkg/config"
	"github.com/laminadb/lamina/pkg/datamgr"
	"github.com/laminadb/lamina/pkg/logging"
	"github.com/laminadb/lamina/pkg/moerr"
	"github.com/laminadb/lamina/pkg/privilege"
	"github.com/laminadb/lamina/pkg/sysmem"
)

var configFile = flag.String("cfg", "./lamina.toml", "toml configuration file")

// noGPUProbe is plugged in when useGpus is false, which is the
// default; a real CUDA/ROCm-backed Probe belongs to a build that
// enables the GPU levels, out of scope here per the Non-goal
// excluding compute kernels.
type noGPUProbe struct{}

func (noGPUProbe) DeviceFreeBytes(device int) (int64, error) { return 0, nil }

// bootstrapAdmin grants the built-in admin role every privilege on
// every database, under the catalog write lock, mirroring how a real
// deployment seeds its first principal before any SQL layer exists.
func bootstrapAdmin(grants *privilege.Graph, locks *catalog.LockManager) error {
	_, unlock := locks.WriteLock(catalog.NewTicket())
	defer unlock()

	admin, err := grants.CreateRole("admin")
	if err != nil {
		return err
	}
	return grants.GrantPrivileges(admin, privilege.Object{
		Key:        privilege.Key{DBID: -1, ObjectID: -1},
		Privileges: privilege.All,
	})
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config from %s: %v\n", *configFile, err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Options{
		Path:       cfg.LogPath,
		Level:      cfg.LogLevel,
		MaxSizeMB:  cfg.MaxLogSizeMB,
		MaxAgeDays: cfg.MaxLogAgeDays,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "setting up logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	defer guardInvariant(logger)

	dm, err := datamgr.New(cfg, sysmem.NewProber(), noGPUProbe{})
	if err != nil {
		logger.Fatal("starting data manager", zap.Error(err))
	}
	defer dm.Close()

	grants := privilege.New()
	locks := &catalog.LockManager{}
	if err := bootstrapAdmin(grants, locks); err != nil {
		logger.Fatal("bootstrapping admin role", zap.Error(err))
	}

	logger.Info("lamina-core started",
		zap.String("dataDir", cfg.DataDir),
		zap.Int("pageSize", cfg.PageSize),
		zap.Bool("useGpus", cfg.UseGpus),
	)

	waitForShutdown(logger)
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
}

// guardInvariant recovers a panic raised by an Invariant-kind error
// and exits with a diagnostic instead of letting the runtime print a
// raw goroutine dump, matching the policy that invariant failures
// terminate the process.
func guardInvariant(logger *zap.Logger) {
	r := recover()
	if r == nil {
		return
	}
	if kindErr, ok := r.(*moerr.Error); ok && kindErr.Kind() == moerr.KindInvariant {
		logger.Fatal("invariant violated, terminating", zap.Error(kindErr))
	}
	logger.Fatal("unrecovered panic", zap.Any("panic", r))
}
