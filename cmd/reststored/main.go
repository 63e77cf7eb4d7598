// Package main starts the resource store's one owned process: it wires the
// Backend Client Facade, Script Registry, Operation Engine, Memory Monitor
// and Cleanup Engine together, and exposes a /metrics endpoint. It carries no
// REST frontend for GET/PUT/DELETE/STORAGE_EXPAND — that surface stays an
// external collaborator (§1), the same division aisnodeprofile draws between
// flag parsing/process lifecycle and ais.Run's actual server.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"context"
	goflag "flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/ais-rest/reststore/cmn"
	"github.com/ais-rest/reststore/compress"
	"github.com/ais-rest/reststore/config"
	"github.com/ais-rest/reststore/memmon"
	"github.com/ais-rest/reststore/metrics"
	"github.com/ais-rest/reststore/redisx"
	"github.com/ais-rest/reststore/scripts"
	"github.com/ais-rest/reststore/store"
)

var (
	configPath       = pflag.String("config", "", "path to JSON config file")
	redisAddr        = pflag.String("redis-addr", "", "backend address, overrides config and REST_STORE_REDIS_ADDR")
	metricsAddr      = pflag.String("metrics-addr", ":9219", "address for the /metrics endpoint")
	logLevel         = pflag.String("log-level", "", "glog -stderrthreshold value, e.g. INFO")
	verbosity        = pflag.Int("v", 0, "glog -v verbosity level")
	suggestLockOwner = pflag.Bool("suggest-lock-owner", false, "print a fresh lock owner token and exit")
)

func main() {
	os.Exit(run())
}

func run() int {
	pflag.Parse()
	applyGlogFlags()

	if *suggestLockOwner {
		fmt.Println(cmn.GenShortID())
		return 0
	}

	if *redisAddr != "" {
		os.Setenv("REST_STORE_REDIS_ADDR", *redisAddr)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		glog.Errorf("reststored: config: %v", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := redisx.Dial(cfg.Redis.Addr, cfg.Redis.PoolSize)
	reg, err := scripts.New(ctx, client)
	if err != nil {
		glog.Errorf("reststored: scripts: %v", err)
		return 1
	}

	mset := metrics.New(prometheus.DefaultRegisterer)
	reg.SetMetrics(mset)

	codec := compress.NewCodec(cfg.Compression.Workers)
	prefixes := store.Prefixes{
		Resources:      cfg.Prefixes.Resources,
		Collections:    cfg.Prefixes.Collections,
		Expirable:      cfg.Prefixes.Expirable,
		DeltaResources: cfg.Prefixes.DeltaResources,
		DeltaEtags:     cfg.Prefixes.DeltaEtags,
		Lock:           cfg.Prefixes.Lock,
	}
	engine := store.New(reg, client, codec, prefixes)
	engine.SetMetrics(mset)

	mon := memmon.New(client, cfg.Periods.FreeMemoryCheckInterval(), mset)
	go mon.Run(ctx)

	go runCleanupLoop(ctx, engine, cfg.Cleanup)

	srv := &http.Server{Addr: *metricsAddr, Handler: metricsMux()}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			glog.Errorf("reststored: metrics server: %v", err)
		}
	}()

	<-ctx.Done()
	glog.Info("reststored: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	return 0
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// runCleanupLoop drives the Cleanup Engine on its own ticker, independent of
// any request path, per §4.F — CLEANUP is not atomic across its own bulks,
// so each tick runs until the backlog is empty, MaxDelete is reached, or the
// script is reported missing, and leaves the rest for the next tick.
func runCleanupLoop(ctx context.Context, engine *store.Engine, cfg config.CleanupConf) {
	t := time.NewTicker(cfg.Interval())
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if _, err := engine.Cleanup(ctx, cfg.MaxDelete); err != nil {
				glog.Warningf("reststored: cleanup: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// applyGlogFlags forwards our pflag-parsed --log-level/--v onto glog's own
// flags, which glog registers against the standard "flag" package at import
// time rather than pflag's.
func applyGlogFlags() {
	if *logLevel != "" {
		if f := goflag.Lookup("stderrthreshold"); f != nil {
			_ = f.Value.Set(*logLevel)
		}
	}
	if *verbosity > 0 {
		if f := goflag.Lookup("v"); f != nil {
			_ = f.Value.Set(strconv.Itoa(*verbosity))
		}
	}
}
