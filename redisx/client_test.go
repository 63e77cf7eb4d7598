package redisx_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ais-rest/reststore/cmn"
	"github.com/ais-rest/reststore/redisx"
)

func newTestClient(t *testing.T) (redisx.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return redisx.New(rdb), mr
}

func TestLoadAndEvalScript(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	sha, err := c.LoadScript(ctx, "return 'ok'")
	require.NoError(t, err)
	require.NotEmpty(t, sha)

	res, err := c.EvalSha(ctx, sha, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "ok", res)
}

func TestEvalShaMissingSurfacesSentinel(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, err := c.EvalSha(ctx, "0000000000000000000000000000000000000000", nil, nil)
	require.ErrorIs(t, err, cmn.ErrScriptMissing)
}

func TestScriptExists(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	sha, err := c.LoadScript(ctx, "return 1")
	require.NoError(t, err)

	ok, err := c.ScriptExists(ctx, sha)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = c.ScriptExists(ctx, "ffffffffffffffffffffffffffffffffffffffff")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestZCount(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	mr.ZAdd("expirable", 10, "/a")
	mr.ZAdd("expirable", 20, "/b")
	mr.ZAdd("expirable", 30, "/c")

	n, err := c.ZCount(ctx, "expirable", 0, 25)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}
