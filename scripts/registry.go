// Package scripts implements the Script Registry (§4.C): it owns the five
// embedded Lua sources, keeps each one's content SHA-1 in sync with the
// backend's script cache, and recovers from NOSCRIPT with bounded retry.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package scripts

import (
	"context"
	"crypto/sha1"
	"embed"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/sync/singleflight"

	"github.com/ais-rest/reststore/cmn"
	"github.com/ais-rest/reststore/metrics"
	"github.com/ais-rest/reststore/redisx"
)

//go:embed lua/*.lua
var luaFS embed.FS

const (
	delspliceMarker = "--%(delscript)"
	delretMarker    = "--DELRET"
	debugLogMarker  = "redis.log(redis.LOG_NOTICE,"
)

// entry tracks one script kind's live source, its locally computed SHA-1,
// and whether that source currently carries debug redis.log lines.
type entry struct {
	mu        sync.Mutex
	base      string // source with debug log lines intact, before stripping
	source    string // source actually registered with the backend
	sha       string
	logOutput bool
}

// Registry is the Script Registry. Safe for concurrent use.
type Registry struct {
	client  redisx.Client
	sf      singleflight.Group
	metrics *metrics.Set

	mu      sync.RWMutex
	entries map[string]*entry
}

// SetMetrics attaches a metric Set; reload() counts against it from then on.
// Left unset (nil), the Registry simply doesn't report reload counts.
func (r *Registry) SetMetrics(m *metrics.Set) {
	r.metrics = m
}

// New loads and splices the five embedded scripts and eagerly registers
// them with client. Registration failures at startup are logged but not
// fatal — Eval's own NOSCRIPT recovery loop re-registers lazily.
func New(ctx context.Context, client redisx.Client) (*Registry, error) {
	raw, err := loadEmbedded()
	if err != nil {
		return nil, err
	}

	r := &Registry{
		client:  client,
		entries: make(map[string]*entry, len(raw)),
	}
	for kind, src := range raw {
		e := &entry{base: src, logOutput: bool(glog.V(4))}
		e.source = applyLogPolicy(src, e.logOutput)
		e.sha = sha1Hex(e.source)
		r.entries[kind] = e

		if sha, err := client.LoadScript(ctx, e.source); err != nil {
			glog.Warningf("scripts: initial load of %s failed: %v", kind, err)
		} else if sha != e.sha {
			glog.Warningf("scripts: %s backend sha %s differs from local %s, adopting backend's", kind, sha, e.sha)
			e.sha = sha
		}
	}
	return r, nil
}

func loadEmbedded() (map[string]string, error) {
	names := map[string]string{
		cmn.ScriptGet:           "lua/get.lua",
		cmn.ScriptStorageExpand: "lua/expand.lua",
		cmn.ScriptPut:           "lua/put.lua",
		cmn.ScriptDelete:        "lua/delete.lua",
		cmn.ScriptCleanup:       "lua/cleanup.lua",
	}
	out := make(map[string]string, len(names))
	for kind, path := range names {
		b, err := luaFS.ReadFile(path)
		if err != nil {
			return nil, cmn.Wrap(err, "scripts: reading embedded "+path)
		}
		out[kind] = string(b)
	}

	delSrc, ok := out[cmn.ScriptDelete]
	if !ok {
		return nil, fmt.Errorf("scripts: delete.lua missing from embedded sources")
	}
	out[cmn.ScriptCleanup] = strings.Replace(out[cmn.ScriptCleanup], delspliceMarker, commentDelReturns(delSrc), 1)
	return out, nil
}

// commentDelReturns disables delete.lua's top-level script exits (tagged
// --DELRET) before it is inlined into cleanup.lua's sweep loop, so a
// skipped entry falls through to the next loop iteration instead of
// aborting the whole sweep. Returns inside delete.lua's own local helper
// functions are untagged and stay live.
func commentDelReturns(src string) string {
	lines := strings.Split(src, "\n")
	for i, line := range lines {
		if strings.Contains(line, delretMarker) {
			trimmed := strings.TrimLeft(line, " \t")
			indent := line[:len(line)-len(trimmed)]
			lines[i] = indent + "-- " + trimmed
		}
	}
	return strings.Join(lines, "\n")
}

// applyLogPolicy strips (or restores) redis.log debug lines to match
// whether glog.V(4) is currently enabled.
func applyLogPolicy(src string, logOutput bool) string {
	if logOutput {
		return src
	}
	lines := strings.Split(src, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.Contains(line, debugLogMarker) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func sha1Hex(src string) string {
	sum := sha1.Sum([]byte(src))
	return hex.EncodeToString(sum[:])
}

// Eval runs the named script kind: one initial attempt plus up to
// cmn.ScriptRetryBound NOSCRIPT-triggered retries (cmn.ScriptRetryBound+1
// total EvalSha calls) before giving up.
func (r *Registry) Eval(ctx context.Context, kind string, keys []string, args []interface{}) (interface{}, error) {
	e := r.entry(kind)
	if e == nil {
		return nil, fmt.Errorf("scripts: unknown kind %q", kind)
	}

	r.syncLogPolicy(ctx, kind, e)

	var lastErr error
	for attempt := 0; attempt <= cmn.ScriptRetryBound; attempt++ {
		e.mu.Lock()
		sha := e.sha
		e.mu.Unlock()

		res, err := r.client.EvalSha(ctx, sha, keys, args)
		if err == nil {
			return res, nil
		}
		if err != cmn.ErrScriptMissing {
			return nil, err
		}
		lastErr = err
		if err := r.reload(ctx, kind, e); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("scripts: %s: retry bound exhausted: %w", kind, lastErr)
}

// EvalCleanupTick runs the CLEANUP script once with CLEANUP's own recovery
// policy (§4.F), distinct from Eval's bounded retry loop: on NOSCRIPT it
// reloads the script a single time and reports missing=true instead of
// retrying the call within this tick — the caller's own ticker is expected
// to drive the next tick, which will find the script loaded.
func (r *Registry) EvalCleanupTick(ctx context.Context, keys []string, args []interface{}) (res interface{}, missing bool, err error) {
	e := r.entry(cmn.ScriptCleanup)
	if e == nil {
		return nil, false, fmt.Errorf("scripts: unknown kind %q", cmn.ScriptCleanup)
	}
	r.syncLogPolicy(ctx, cmn.ScriptCleanup, e)

	e.mu.Lock()
	sha := e.sha
	e.mu.Unlock()

	res, err = r.client.EvalSha(ctx, sha, keys, args)
	if err == nil {
		return res, false, nil
	}
	if err != cmn.ErrScriptMissing {
		return nil, false, err
	}
	if reloadErr := r.reload(ctx, cmn.ScriptCleanup, e); reloadErr != nil {
		return nil, false, reloadErr
	}
	return nil, true, nil
}

func (r *Registry) entry(kind string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[kind]
}

// reload re-registers e's current source, deduplicating concurrent
// reloaders for the same script kind via singleflight. The backend is asked
// whether the current SHA is cached first; the load is skipped when it is.
func (r *Registry) reload(ctx context.Context, kind string, e *entry) error {
	_, err, _ := r.sf.Do(kind, func() (interface{}, error) {
		e.mu.Lock()
		src, cur := e.source, e.sha
		e.mu.Unlock()

		if ok, err := r.client.ScriptExists(ctx, cur); err == nil && ok {
			return nil, nil
		}

		sha, err := r.client.LoadScript(ctx, src)
		if err != nil {
			return nil, cmn.Wrap(err, "scripts: reload "+kind)
		}
		e.mu.Lock()
		if sha != e.sha {
			glog.Warningf("scripts: %s backend sha %s differs from local %s, adopting backend's", kind, sha, e.sha)
		}
		e.sha = sha
		e.mu.Unlock()
		if r.metrics != nil {
			r.metrics.ScriptReloadsTotal.WithLabelValues(kind).Inc()
		}
		return nil, nil
	})
	return err
}

// syncLogPolicy recomposes and re-registers a script's source when the
// process-wide glog verbosity has changed since it was last loaded.
func (r *Registry) syncLogPolicy(ctx context.Context, kind string, e *entry) {
	want := bool(glog.V(4))
	e.mu.Lock()
	changed := want != e.logOutput
	if changed {
		e.logOutput = want
		e.source = applyLogPolicy(e.base, want)
		e.sha = sha1Hex(e.source)
	}
	e.mu.Unlock()

	if !changed {
		return
	}
	if err := r.reload(ctx, kind, e); err != nil {
		glog.Warningf("scripts: %s: log-policy recompile failed: %v", kind, err)
	}
}
