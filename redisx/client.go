// Package redisx implements the Backend Client Facade (§4.B): a thin,
// context-aware wrapper over go-redis exposing exactly the five primitives
// the rest of the core requires, with NOSCRIPT surfaced as cmn.ErrScriptMissing.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package redisx

import (
	"context"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/ais-rest/reststore/cmn"
)

// Client is the Backend Client Facade. The core only ever depends on this
// interface, never on *redis.Client directly, so tests substitute a
// miniredis-backed instance without touching the rest of the stack.
type Client interface {
	EvalSha(ctx context.Context, sha string, keys []string, args []interface{}) (interface{}, error)
	LoadScript(ctx context.Context, source string) (string, error)
	ScriptExists(ctx context.Context, sha string) (bool, error)
	InfoMemory(ctx context.Context) (map[string]string, error)
	ZCount(ctx context.Context, key string, min, max int64) (int64, error)
}

type client struct {
	rdb *redis.Client
}

// New wraps an already-configured *redis.Client as a Client facade.
func New(rdb *redis.Client) Client {
	return &client{rdb: rdb}
}

// Dial builds a *redis.Client for addr (host:port) and wraps it as a Client.
// Pool size comes from the caller's config.RedisConf; timeouts are
// go-redis's defaults.
func Dial(addr string, poolSize int) Client {
	return New(redis.NewClient(&redis.Options{
		Addr:     addr,
		PoolSize: poolSize,
	}))
}

func (c *client) EvalSha(ctx context.Context, sha string, keys []string, args []interface{}) (interface{}, error) {
	res, err := c.rdb.EvalSha(ctx, sha, keys, args...).Result()
	if err != nil {
		if isNoScript(err) {
			return nil, cmn.ErrScriptMissing
		}
		return nil, err
	}
	return res, nil
}

func (c *client) LoadScript(ctx context.Context, source string) (string, error) {
	return c.rdb.ScriptLoad(ctx, source).Result()
}

func (c *client) ScriptExists(ctx context.Context, sha string) (bool, error) {
	res, err := c.rdb.ScriptExists(ctx, sha).Result()
	if err != nil {
		return false, err
	}
	return len(res) == 1 && res[0], nil
}

func (c *client) InfoMemory(ctx context.Context) (map[string]string, error) {
	raw, err := c.rdb.Info(ctx, "memory").Result()
	if err != nil {
		return nil, err
	}
	return parseInfo(raw), nil
}

func (c *client) ZCount(ctx context.Context, key string, min, max int64) (int64, error) {
	return c.rdb.ZCount(ctx, key, strconv.FormatInt(min, 10), strconv.FormatInt(max, 10)).Result()
}

// isNoScript detects the RESP "NOSCRIPT" error prefix go-redis surfaces
// as a plain *redis.Error / wrapped error string.
func isNoScript(err error) bool {
	return strings.HasPrefix(err.Error(), "NOSCRIPT")
}

func parseInfo(raw string) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(raw, "\r\n") {
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		kv := strings.SplitN(line, ":", 2)
		if len(kv) != 2 {
			continue
		}
		out[kv[0]] = kv[1]
	}
	return out
}
