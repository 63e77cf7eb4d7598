// Package config loads and validates the resource store's configuration:
// backend connection, key-space prefixes, periodic intervals, cleanup
// bounds, and compression. Structured the way cmn/config.go lays out
// aistore's config tree — one sub-config struct per concern, each
// implementing Validator — but persisted as plain JSON via json-iterator
// rather than aistore's checksummed jsp format, which is unneeded for a
// config this small and not carried over from the teacher.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package config

import (
	"fmt"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/ais-rest/reststore/cmn"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Validator is implemented by every sub-config; mirrors cmn.Validator.
type Validator interface {
	Validate() error
}

// RedisConf describes the backend connection.
type RedisConf struct {
	Addr     string `json:"addr"`
	PoolSize int    `json:"pool_size"`
}

func (c *RedisConf) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("config: redis.addr must not be empty")
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	return nil
}

// PrefixConf names the backend key-space prefixes (§6).
type PrefixConf struct {
	Resources      string `json:"resources"`
	Collections    string `json:"collections"`
	Expirable      string `json:"expirable"`
	DeltaResources string `json:"delta_resources"`
	DeltaEtags     string `json:"delta_etags"`
	Lock           string `json:"lock"`
}

func (c *PrefixConf) Validate() error {
	if c.Resources == "" || c.Collections == "" || c.Expirable == "" {
		return fmt.Errorf("config: prefixes.{resources,collections,expirable} must not be empty")
	}
	if c.DeltaResources == "" {
		c.DeltaResources = "delta-resources:"
	}
	if c.DeltaEtags == "" {
		c.DeltaEtags = "delta-etags:"
	}
	if c.Lock == "" {
		c.Lock = "locks:"
	}
	return nil
}

// PeriodConf holds the memory-monitor sampling interval.
type PeriodConf struct {
	FreeMemoryCheckIntervalMs int64 `json:"free_memory_check_interval_ms"`
}

func (c *PeriodConf) Validate() error {
	if c.FreeMemoryCheckIntervalMs <= 0 {
		c.FreeMemoryCheckIntervalMs = 60_000
	}
	return nil
}

func (c PeriodConf) FreeMemoryCheckInterval() time.Duration {
	return time.Duration(c.FreeMemoryCheckIntervalMs) * time.Millisecond
}

// CleanupConf bounds a single CLEANUP invocation (§4.F).
type CleanupConf struct {
	MaxDelete           int64 `json:"max_delete"`
	IntervalMs          int64 `json:"interval_ms"`
}

func (c *CleanupConf) Validate() error {
	if c.MaxDelete <= 0 {
		c.MaxDelete = cmn.CleanupBulkSize * 5
	}
	if c.IntervalMs <= 0 {
		c.IntervalMs = 60_000
	}
	return nil
}

func (c CleanupConf) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

// CompressionConf bounds the compression worker pool.
type CompressionConf struct {
	Workers int `json:"workers"`
}

func (c *CompressionConf) Validate() error {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	return nil
}

// Config is the top-level configuration tree.
type Config struct {
	Redis       RedisConf       `json:"redis"`
	Prefixes    PrefixConf      `json:"prefixes"`
	Periods     PeriodConf      `json:"periods"`
	Cleanup     CleanupConf     `json:"cleanup"`
	Compression CompressionConf `json:"compression"`
}

func (c *Config) validators() []Validator {
	return []Validator{&c.Redis, &c.Prefixes, &c.Periods, &c.Cleanup, &c.Compression}
}

// Validate runs every sub-config's Validate, applying its defaults in place.
func (c *Config) Validate() error {
	for _, v := range c.validators() {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Load reads a JSON config file at path, applies REST_STORE_REDIS_ADDR env
// override when set (the one override callers reach for most: pointing a
// binary at a different backend without touching the file), and validates
// the result.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, cmn.Wrap(err, "config: read "+path)
		}
		if err := json.Unmarshal(b, &c); err != nil {
			return nil, cmn.Wrap(err, "config: parse "+path)
		}
	}
	if addr := os.Getenv("REST_STORE_REDIS_ADDR"); addr != "" {
		c.Redis.Addr = addr
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
