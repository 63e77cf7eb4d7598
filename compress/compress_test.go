package compress_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ais-rest/reststore/compress"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	c := compress.NewCodec(2)
	ctx := context.Background()
	data := []byte(strings.Repeat("the quick brown fox jumps over the lazy dog ", 200))

	compressed, err := c.Compress(ctx, data)
	require.NoError(t, err)
	require.NotEmpty(t, compressed)
	require.Less(t, len(compressed), len(data))

	decompressed, err := c.Decompress(ctx, compressed)
	require.NoError(t, err)
	require.Equal(t, data, decompressed)
}

func TestCompressEmptyInput(t *testing.T) {
	c := compress.NewCodec(1)
	ctx := context.Background()

	compressed, err := c.Compress(ctx, nil)
	require.NoError(t, err)

	decompressed, err := c.Decompress(ctx, compressed)
	require.NoError(t, err)
	require.Empty(t, decompressed)
}
