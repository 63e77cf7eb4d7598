// Package memmon implements the Memory Monitor (§4.E): a periodic sampler
// of backend memory usage exposing a lock-free cached percentage, in the
// same periodic-housekeeping shape as cluster/lom_cache_hk.go.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package memmon

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/ais-rest/reststore/metrics"
	"github.com/ais-rest/reststore/redisx"
)

// Monitor periodically samples backend memory usage and caches the result
// as a percentage in [0,100], or "unknown" when the backend's INFO memory
// section can't be parsed.
type Monitor struct {
	client   redisx.Client
	interval time.Duration
	metrics  *metrics.Set

	cell atomic.Pointer[float64]
}

// New builds a Monitor that samples client every interval once Run starts.
func New(client redisx.Client, interval time.Duration, m *metrics.Set) *Monitor {
	return &Monitor{client: client, interval: interval, metrics: m}
}

// Run samples on a ticker until ctx is done, mirroring the teacher's
// housekeeping goroutine shape (one sampler, no overlap, self-rescheduling).
func (m *Monitor) Run(ctx context.Context) {
	t := time.NewTicker(m.interval)
	defer t.Stop()

	m.sampleOnce(ctx)
	for {
		select {
		case <-t.C:
			m.sampleOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (m *Monitor) sampleOnce(ctx context.Context) {
	info, err := m.client.InfoMemory(ctx)
	if err != nil {
		glog.Warningf("memmon: INFO memory failed: %v", err)
		m.cell.Store(nil)
		return
	}

	pct, ok := computePercent(info)
	if !ok {
		glog.Warningf("memmon: could not compute percentage from INFO memory section")
		m.cell.Store(nil)
		return
	}
	m.cell.Store(&pct)
	if m.metrics != nil {
		m.metrics.MemoryUsedPercent.Set(pct)
	}
}

func computePercent(info map[string]string) (float64, bool) {
	used, err := strconv.ParseFloat(info["used_memory"], 64)
	if err != nil {
		return 0, false
	}
	total, err := strconv.ParseFloat(info["total_system_memory"], 64)
	if err != nil || total == 0 {
		return 0, false
	}
	pct := used / total * 100
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return pct, true
}

// Percent returns the last-sampled percentage and true, or (0, false) if no
// sample has been taken yet or the most recent sample failed.
func (m *Monitor) Percent() (float64, bool) {
	p := m.cell.Load()
	if p == nil {
		return 0, false
	}
	return *p, true
}
