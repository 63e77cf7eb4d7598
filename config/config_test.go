package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ais-rest/reststore/config"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{"redis":{"addr":"127.0.0.1:6379"},"prefixes":{"resources":"r:","collections":"c:","expirable":"exp"}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Redis.PoolSize != 10 {
		t.Errorf("expected default pool size 10, got %d", c.Redis.PoolSize)
	}
	if c.Prefixes.Lock != "locks:" {
		t.Errorf("expected default lock prefix, got %q", c.Prefixes.Lock)
	}
	if c.Cleanup.MaxDelete <= 0 {
		t.Errorf("expected positive default MaxDelete, got %d", c.Cleanup.MaxDelete)
	}
	if c.Compression.Workers != 4 {
		t.Errorf("expected default compression workers 4, got %d", c.Compression.Workers)
	}
}

func TestLoadRejectsMissingRedisAddr(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{"prefixes":{"resources":"r:","collections":"c:","expirable":"exp"}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := config.Load(path); err == nil {
		t.Fatal("expected error for missing redis.addr")
	}
}

func TestLoadRejectsMissingPrefixes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{"redis":{"addr":"127.0.0.1:6379"}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := config.Load(path); err == nil {
		t.Fatal("expected error for missing prefixes")
	}
}

func TestLoadEnvOverridesRedisAddr(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{"redis":{"addr":"127.0.0.1:6379"},"prefixes":{"resources":"r:","collections":"c:","expirable":"exp"}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("REST_STORE_REDIS_ADDR", "10.0.0.5:6380")
	c, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Redis.Addr != "10.0.0.5:6380" {
		t.Errorf("expected env override to win, got %q", c.Redis.Addr)
	}
}
