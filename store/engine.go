// Package store implements the Operation Engine (§4.D): GET, STORAGE_EXPAND,
// PUT, DELETE and CLEANUP, each marshaling positional string arguments,
// invoking the matching script via the Script Registry, and decoding the
// result into the shared result.Value sum type.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package store

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/ais-rest/reststore/cmn"
	"github.com/ais-rest/reststore/compress"
	"github.com/ais-rest/reststore/metrics"
	"github.com/ais-rest/reststore/redisx"
	"github.com/ais-rest/reststore/result"
	"github.com/ais-rest/reststore/scripts"
	"github.com/ais-rest/reststore/stream"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Prefixes names the backend key-space prefixes every script call carries
// as its leading arguments; populated from config.PrefixConf.
type Prefixes struct {
	Resources      string
	Collections    string
	Expirable      string
	DeltaResources string
	DeltaEtags     string
	Lock           string
}

// Engine is the Operation Engine.
type Engine struct {
	reg      *scripts.Registry
	client   redisx.Client
	codec    *compress.Codec
	prefixes Prefixes
	now      func() time.Time
	metrics  *metrics.Set
}

// SetMetrics attaches a metric Set; Get/Expand/Put/Delete report latency
// and outcome against it from then on. Left unset (nil), they don't.
func (e *Engine) SetMetrics(m *metrics.Set) {
	e.metrics = m
}

func (e *Engine) observe(operation string, started time.Time, v result.Value) {
	if e.metrics == nil {
		return
	}
	e.metrics.ObserveOperation(operation, v.Outcome.String(), time.Since(started).Seconds())
}

// New builds an Engine over reg (already loaded with the five scripts),
// client (used directly only for ZCount, CLEANUP's backlog query) and codec
// (the compression collaborator PUT/GET use around stream boundaries).
func New(reg *scripts.Registry, client redisx.Client, codec *compress.Codec, prefixes Prefixes) *Engine {
	return &Engine{reg: reg, client: client, codec: codec, prefixes: prefixes, now: time.Now}
}

// SetClock overrides the engine's time source; used by tests that need
// deterministic expiry windows instead of the real wall clock.
func (e *Engine) SetClock(fn func() time.Time) {
	e.now = fn
}

func (e *Engine) nowMillis() int64 {
	return e.now().UnixNano() / int64(time.Millisecond)
}

// expireAtMillis applies the expire argument convention (§6): seconds=-1
// means never; otherwise now + seconds*1000.
func expireAtMillis(now int64, seconds int64) string {
	if seconds < 0 {
		return cmn.MaxExpireMillis
	}
	return strconv.FormatInt(now+seconds*1000, 10)
}

// Get implements GET(path, etag, offset, limit).
func (e *Engine) Get(ctx context.Context, path, etag string, offset, limit int) (result.Value, error) {
	started := e.now()
	v, err := e.doGet(ctx, path, etag, offset, limit)
	if err == nil {
		e.observe("GET", started, v)
	}
	return v, err
}

func (e *Engine) doGet(ctx context.Context, path, etag string, offset, limit int) (result.Value, error) {
	encoded := cmn.EncodePath(path)
	res, err := e.reg.Eval(ctx, cmn.ScriptGet, []string{encoded}, []interface{}{
		e.prefixes.Resources, e.prefixes.Collections, e.prefixes.Expirable,
		strconv.FormatInt(e.nowMillis(), 10), cmn.MaxExpireMillis,
		strconv.Itoa(offset), strconv.Itoa(limit), etag,
	})
	if err != nil {
		return result.Value{}, err
	}

	arr, ok := res.([]interface{})
	if !ok || len(arr) == 0 {
		return result.Value{}, fmt.Errorf("store: GET: unexpected script reply %#v", res)
	}

	switch toStr(arr[0]) {
	case cmn.OutNotModified:
		return result.NotModified(), nil
	case cmn.OutNotFound:
		return result.NotFound(), nil
	case cmn.TypeResource:
		return e.decodeResourceReply(ctx, arr[1:])
	case cmn.TypeCollection:
		return decodeCollectionReply(arr[1:]), nil
	default:
		return result.Value{}, fmt.Errorf("store: GET: unknown reply tag %v", arr[0])
	}
}

func (e *Engine) decodeResourceReply(ctx context.Context, rest []interface{}) (result.Value, error) {
	bytesStr := toStr(rest[0])
	etag := toStr(rest[1])
	compressed := len(rest) > 2 && rest[2] != nil

	raw := cmn.DecodeBinary(bytesStr)
	if compressed {
		plain, err := e.codec.Decompress(ctx, raw)
		if err != nil {
			return result.Value{}, cmn.Wrap(err, "store: GET: decompress")
		}
		raw = plain
	}
	return result.Doc(&result.Document{
		Stream: stream.NewReader(raw),
		Len:    int64(len(raw)),
		Etag:   etag,
		Exists: true,
	}), nil
}

func decodeCollectionReply(names []interface{}) result.Value {
	items := make([]result.Item, 0, len(names))
	for _, n := range names {
		name := toStr(n)
		isColl := strings.HasSuffix(name, ":")
		if isColl {
			name = strings.TrimSuffix(name, ":")
		}
		items = append(items, result.Item{Name: cmn.DecodeSegment(name), IsCollection: isColl})
	}
	return result.Coll(&result.Collection{Items: items})
}

// Expand implements STORAGE_EXPAND(path, etag, subResourceNames).
func (e *Engine) Expand(ctx context.Context, path, etag string, subNames []string) (result.Value, error) {
	started := e.now()
	v, err := e.doExpand(ctx, path, etag, subNames)
	if err == nil {
		e.observe("STORAGE_EXPAND", started, v)
	}
	return v, err
}

func (e *Engine) doExpand(ctx context.Context, path, etag string, subNames []string) (result.Value, error) {
	encoded := cmn.EncodePath(path)
	res, err := e.reg.Eval(ctx, cmn.ScriptStorageExpand, []string{encoded}, []interface{}{
		e.prefixes.Resources, e.prefixes.Collections, e.prefixes.Expirable,
		strconv.FormatInt(e.nowMillis(), 10), cmn.MaxExpireMillis,
		strings.Join(subNames, ";"), strconv.Itoa(len(subNames)),
	})
	if err != nil {
		return result.Value{}, err
	}

	reply := toStr(res)
	switch reply {
	case cmn.OutNotFound:
		return result.NotFound(), nil
	case "compressionNotSupported":
		return result.Invalid("expansion does not support compressed entries"), nil
	}

	var pairs [][2]string
	if err := json.UnmarshalFromString(reply, &pairs); err != nil {
		return result.Value{}, cmn.Wrap(err, "store: STORAGE_EXPAND: decode script reply")
	}

	// Each child payload is spliced in as raw JSON (sjson.SetRawBytes) rather
	// than decoded into a Go value and re-marshaled: it is already either a
	// well-formed JSON object or the array-shaped listing text rebuilt by
	// expandListing, so re-encoding would only cost a pointless round trip.
	body := []byte("{}")
	for _, pair := range pairs {
		name, payload := cmn.DecodeSegment(pair[0]), pair[1]
		if strings.HasPrefix(payload, "[") && strings.HasSuffix(payload, "]") {
			payload = expandListing(payload)
		} else if !json.Valid([]byte(payload)) {
			return result.Invalid(fmt.Sprintf("Error decoding invalid json resource '%s'", name)), nil
		}
		updated, err := sjson.SetRawBytes(body, name, []byte(payload))
		if err != nil {
			return result.Value{}, cmn.Wrap(err, "store: STORAGE_EXPAND: splice child payload")
		}
		body = updated
	}

	sum := sha1.Sum(body)
	computedEtag := hex.EncodeToString(sum[:])
	if etag != "" && etag == computedEtag {
		return result.NotModified(), nil
	}
	return result.Doc(&result.Document{
		Stream: stream.NewReader(body),
		Len:    int64(len(body)),
		Etag:   computedEtag,
		Exists: true,
	}), nil
}

// expandListing re-sorts a bracketed array-shaped listing the same way GET
// sorts collection children: sub-collections (trailing "/") first, then
// resources, each lexicographic — using the same lossy comma-split the
// original does rather than full JSON decoding (see DESIGN.md Open Question
// (c)): strip each element's surrounding quotes before sorting/splicing.
func expandListing(payload string) string {
	inner := strings.TrimSuffix(strings.TrimPrefix(payload, "["), "]")
	var raw []string
	if inner != "" {
		raw = strings.Split(inner, ",")
	}
	var colls, docs []string
	for _, r := range raw {
		r = strings.Trim(r, `"`)
		r = strings.ReplaceAll(r, `\"`, `"`)
		r = strings.ReplaceAll(r, `\\`, `\`)
		isColl := strings.HasSuffix(r, "/")
		if isColl {
			r = cmn.DecodeSegment(strings.TrimSuffix(r, "/")) + "/"
			colls = append(colls, r)
		} else {
			r = cmn.DecodeSegment(r)
			docs = append(docs, r)
		}
	}
	sort.Strings(colls)
	sort.Strings(docs)

	items := make([]string, 0, len(colls)+len(docs))
	items = append(items, colls...)
	items = append(items, docs...)
	return "[" + strings.Join(quoteAll(items), ",") + "]"
}

func quoteAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strconv.Quote(s)
	}
	return out
}

// PutOptions carries PUT's non-body parameters (§4.D).
type PutOptions struct {
	Etag              string
	Merge             bool
	ExpireSeconds     int64
	LockOwner         string
	LockMode          string
	LockExpireSeconds int64
	StoreCompressed   bool
}

// Put hands the caller a WriteSink; once End() is called the accumulated
// bytes are (optionally) compressed and the PUT script is invoked. The
// resulting Value is delivered on the returned channel exactly once.
func (e *Engine) Put(ctx context.Context, path string, opts PutOptions) (*stream.WriteSink, <-chan result.Value) {
	out := make(chan result.Value, 1)

	started := e.now()
	sink := stream.NewWriteSink(func(data []byte) error {
		v, err := e.doPut(ctx, path, opts, data)
		if err != nil {
			out <- result.Err(err.Error())
			return err
		}
		e.observe("PUT", started, v)
		out <- v
		return nil
	})
	return sink, out
}

func (e *Engine) doPut(ctx context.Context, path string, opts PutOptions, data []byte) (result.Value, error) {
	if opts.Merge {
		if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
			return result.Invalid("merge=true requires a JSON object payload"), nil
		}
	}

	etag := opts.Etag
	if etag == "" {
		etag = cmn.GenUUID()
	}

	payload := data
	storeCompressed := "0"
	if opts.StoreCompressed {
		compressed, err := e.codec.Compress(ctx, data)
		if err != nil {
			return result.Value{}, cmn.Wrap(err, "store: PUT: compress")
		}
		payload = compressed
		storeCompressed = "1"
	}

	now := e.nowMillis()
	encoded := cmn.EncodePath(path)
	res, err := e.reg.Eval(ctx, cmn.ScriptPut, []string{encoded}, []interface{}{
		e.prefixes.Resources, e.prefixes.Collections, e.prefixes.Expirable,
		strconv.FormatBool(opts.Merge), expireAtMillis(now, opts.ExpireSeconds), cmn.MaxExpireMillis,
		cmn.EncodeBinary(payload), etag,
		e.prefixes.Lock, opts.LockOwner, opts.LockMode, expireAtMillis(now, opts.LockExpireSeconds),
		storeCompressed,
	})
	if err != nil {
		return result.Value{}, err
	}

	switch v := res.(type) {
	case string:
		switch v {
		case "existingCollection":
			return result.ExistingCollectionConflict(), nil
		case "existingResource":
			return result.ExistingResourceConflict(), nil
		case cmn.OutNotModified:
			return result.NotModified(), nil
		case cmn.LockSilent, cmn.LockReject, cmn.LockOverride:
			return result.Rejected(), nil
		default:
			return result.Value{}, fmt.Errorf("store: PUT: unexpected script reply %q", v)
		}
	case []interface{}:
		if len(v) != 2 || toStr(v[0]) != "ok" {
			return result.Value{}, fmt.Errorf("store: PUT: unexpected script reply %#v", v)
		}
		return result.Doc(&result.Document{
			Stream: stream.NewReader(data),
			Len:    int64(len(data)),
			Etag:   toStr(v[1]),
			Exists: true,
		}), nil
	default:
		return result.Value{}, fmt.Errorf("store: PUT: unexpected script reply type %#v", res)
	}
}

// DeleteOptions carries DELETE's non-path parameters (§4.D).
type DeleteOptions struct {
	LockOwner               string
	LockMode                string
	LockExpireSeconds       int64
	ConfirmCollectionDelete bool
	DeleteRecursive         bool
}

// Delete implements DELETE(path, ...).
func (e *Engine) Delete(ctx context.Context, path string, opts DeleteOptions) (result.Value, error) {
	started := e.now()
	v, err := e.doDelete(ctx, path, opts)
	if err == nil {
		e.observe("DELETE", started, v)
	}
	return v, err
}

func (e *Engine) doDelete(ctx context.Context, path string, opts DeleteOptions) (result.Value, error) {
	now := e.nowMillis()
	encoded := cmn.EncodePath(path)
	res, err := e.reg.Eval(ctx, cmn.ScriptDelete, []string{encoded}, []interface{}{
		e.prefixes.Resources, e.prefixes.Collections,
		e.prefixes.DeltaResources, e.prefixes.DeltaEtags, e.prefixes.Expirable,
		strconv.FormatInt(now, 10), cmn.MaxExpireMillis,
		strconv.FormatBool(opts.ConfirmCollectionDelete), strconv.FormatBool(opts.DeleteRecursive),
		e.prefixes.Lock, opts.LockOwner, opts.LockMode, expireAtMillis(now, opts.LockExpireSeconds),
	})
	if err != nil {
		return result.Value{}, err
	}

	switch toStr(res) {
	case cmn.OutNotFound:
		return result.NotFound(), nil
	case cmn.OutNotEmpty:
		return result.NotEmpty(), nil
	case cmn.LockSilent, cmn.LockReject, cmn.LockOverride:
		return result.Rejected(), nil
	case "ok":
		return result.Doc(&result.Document{Exists: true}), nil
	default:
		return result.Value{}, fmt.Errorf("store: DELETE: unexpected script reply %v", res)
	}
}

// cleanupResult is the small JSON document CLEANUP streams back as a
// Document (§4.F).
type cleanupResult struct {
	CleanedResources     int64 `json:"cleanedResources"`
	ExpiredResourcesLeft int64 `json:"expiredResourcesLeft"`
}

// Cleanup sweeps expired documents in fixed-size bulks (§4.F) until either
// a bulk returns nothing or maxDelete is reached, then reports the backlog.
func (e *Engine) Cleanup(ctx context.Context, maxDelete int64) (result.Value, error) {
	now := e.nowMillis()
	var cleanedTotal int64

	for cleanedTotal < maxDelete {
		// CLEANUP uses its own bail-on-NOSCRIPT recovery (§4.F) rather than
		// Eval's bounded retry loop: on a missing script it reloads once and
		// this tick simply stops early, leaving the rest of the backlog for
		// the next tick instead of retrying within the same call.
		res, missing, err := e.reg.EvalCleanupTick(ctx, nil, []interface{}{
			e.prefixes.Resources, e.prefixes.Collections,
			e.prefixes.DeltaResources, e.prefixes.DeltaEtags, e.prefixes.Expirable,
			"0", cmn.MaxExpireMillis, "false", "true",
			strconv.FormatInt(now, 10), strconv.Itoa(cmn.CleanupBulkSize),
		})
		if err != nil {
			return result.Value{}, err
		}
		if missing {
			break
		}
		count, ok := toInt(res)
		if !ok {
			return result.Value{}, fmt.Errorf("store: CLEANUP: unexpected script reply %#v", res)
		}
		cleanedTotal += count
		if count == 0 {
			break
		}
	}

	left, err := e.expiredResourcesLeft(ctx, now)
	if err != nil {
		return result.Value{}, err
	}
	if e.metrics != nil {
		e.metrics.ObserveCleanup(cleanedTotal, left)
	}

	body, err := json.Marshal(cleanupResult{CleanedResources: cleanedTotal, ExpiredResourcesLeft: left})
	if err != nil {
		return result.Value{}, cmn.Wrap(err, "store: CLEANUP: encode result")
	}
	return result.Doc(&result.Document{
		Stream: stream.NewReader(body),
		Len:    int64(len(body)),
		Exists: true,
	}), nil
}

func (e *Engine) expiredResourcesLeft(ctx context.Context, now int64) (int64, error) {
	return e.client.ZCount(ctx, e.prefixes.Expirable, 0, now)
}

func toStr(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func toInt(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}
