package scripts_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ais-rest/reststore/cmn"
	"github.com/ais-rest/reststore/redisx"
	"github.com/ais-rest/reststore/scripts"
)

func newTestRegistry(t *testing.T) (*scripts.Registry, redisx.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	client := redisx.New(rdb)
	reg, err := scripts.New(context.Background(), client)
	require.NoError(t, err)
	return reg, client, mr
}

func TestGetNotFoundOnEmptyStore(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	ctx := context.Background()

	res, err := reg.Eval(ctx, cmn.ScriptGet, []string{"a:b"},
		[]interface{}{"res:", "coll:", "exp", "0", cmn.MaxExpireMillis, "0", "-1", ""})
	require.NoError(t, err)

	arr, ok := res.([]interface{})
	require.True(t, ok)
	require.Equal(t, cmn.OutNotFound, arr[0])
}

func TestPutThenGetRoundTrip(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.Eval(ctx, cmn.ScriptPut, []string{"a:b"},
		[]interface{}{"res:", "coll:", "exp", "false", cmn.MaxExpireMillis, cmn.MaxExpireMillis, `{"x":1}`, "etag-1", "lock:", "", "", "", "0"})
	require.NoError(t, err)

	res, err := reg.Eval(ctx, cmn.ScriptGet, []string{"a:b"},
		[]interface{}{"res:", "coll:", "exp", "0", cmn.MaxExpireMillis, "0", "-1", ""})
	require.NoError(t, err)

	arr := res.([]interface{})
	require.Equal(t, cmn.TypeResource, arr[0])
	require.Equal(t, `{"x":1}`, arr[1])
	require.Equal(t, "etag-1", arr[2])
}

func TestCleanupSweepsExpiredDocument(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.Eval(ctx, cmn.ScriptPut, []string{"a"},
		[]interface{}{"res:", "coll:", "exp", "false", "1", cmn.MaxExpireMillis, `{}`, "etag-1", "lock:", "", "", "", "0"})
	require.NoError(t, err)

	res, err := reg.Eval(ctx, cmn.ScriptCleanup, nil,
		[]interface{}{"res:", "coll:", "dres:", "detag:", "exp", "0", cmn.MaxExpireMillis, "false", "true", "9999999999999", "200"})
	require.NoError(t, err)
	require.EqualValues(t, 1, res)
}

// flakyClient wraps a real Client and forces its EvalSha to report
// cmn.ErrScriptMissing for the first `remaining` calls regardless of the
// backend's actual state, simulating a backend that evicted the script from
// its cache (P8).
type flakyClient struct {
	redisx.Client
	remaining int
}

func (f *flakyClient) EvalSha(ctx context.Context, sha string, keys []string, args []interface{}) (interface{}, error) {
	if f.remaining > 0 {
		f.remaining--
		return nil, cmn.ErrScriptMissing
	}
	return f.Client.EvalSha(ctx, sha, keys, args)
}

func newFlakyRegistry(t *testing.T, missingResponses int) *scripts.Registry {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	flaky := &flakyClient{Client: redisx.New(rdb), remaining: missingResponses}
	reg, err := scripts.New(context.Background(), flaky)
	require.NoError(t, err)
	return reg
}

// P8, first half: the operation recovers as long as it does not exceed
// cmn.ScriptRetryBound retries (cmn.ScriptRetryBound+1 total attempts).
func TestEvalRecoversWithinRetryBound(t *testing.T) {
	reg := newFlakyRegistry(t, cmn.ScriptRetryBound)
	ctx := context.Background()

	res, err := reg.Eval(ctx, cmn.ScriptGet, []string{"a:b"},
		[]interface{}{"res:", "coll:", "exp", "0", cmn.MaxExpireMillis, "0", "-1", ""})
	require.NoError(t, err)

	arr, ok := res.([]interface{})
	require.True(t, ok)
	require.Equal(t, cmn.OutNotFound, arr[0])
}

// P8, second half: one more ScriptMissing response than the retry bound
// allows terminally fails the operation.
func TestEvalFailsAfterExhaustingRetryBound(t *testing.T) {
	reg := newFlakyRegistry(t, cmn.ScriptRetryBound+1)
	ctx := context.Background()

	_, err := reg.Eval(ctx, cmn.ScriptGet, []string{"a:b"},
		[]interface{}{"res:", "coll:", "exp", "0", cmn.MaxExpireMillis, "0", "-1", ""})
	require.Error(t, err)
}
