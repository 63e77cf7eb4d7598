// Package compress implements the external compression utility the spec
// treats as an opaque collaborator: compress(bytes) -> bytes / decompress
// (bytes) -> bytes. Each call runs on the caller's goroutine and blocks until
// a slot in the Codec's concurrency limit is free and the codec work is done.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package compress

import (
	"bytes"
	"context"
	"io"

	"github.com/pierrec/lz4/v3"
	"github.com/pkg/errors"
)

// Codec runs lz4 compress/decompress on a bounded worker pool, mirroring the
// small-scale worker-pool idiom aistore uses for memsys/compression work.
type Codec struct {
	sem chan struct{}
}

// NewCodec returns a Codec that runs at most workers compressions/
// decompressions concurrently.
func NewCodec(workers int) *Codec {
	if workers <= 0 {
		workers = 4
	}
	return &Codec{sem: make(chan struct{}, workers)}
}

func (c *Codec) acquire(ctx context.Context) error {
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Codec) release() { <-c.sem }

// Compress runs lz4 compression on data on a worker slot, returning the
// compressed bytes.
func (c *Codec) Compress(ctx context.Context, data []byte) ([]byte, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	var out bytes.Buffer
	zw := lz4.NewWriter(&out)
	if _, err := zw.Write(data); err != nil {
		return nil, errors.Wrap(err, "lz4 compress")
	}
	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(err, "lz4 compress: close")
	}
	return out.Bytes(), nil
}

// Decompress runs lz4 decompression on data on a worker slot.
func (c *Codec) Decompress(ctx context.Context, data []byte) ([]byte, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	zr := lz4.NewReader(bytes.NewReader(data))
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, errors.Wrap(err, "lz4 decompress")
	}
	return out, nil
}
