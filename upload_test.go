package storekit_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobeaver/storekit"
	"github.com/gobeaver/storekit/driver/memory"
)

func TestUpload(t *testing.T) {
	ctx := context.Background()
	op := storekit.NewOperator(memory.New())

	t.Run("guesses content type from extension", func(t *testing.T) {
		_, err := op.Upload(ctx, "conf/app.yaml", strings.NewReader("a: 1\n"), -1, nil)
		require.NoError(t, err)
		meta, err := op.Stat(ctx, "conf/app.yaml")
		require.NoError(t, err)
		assert.Equal(t, "application/yaml", meta.ContentType)
	})

	t.Run("sniffs content without extension", func(t *testing.T) {
		png := []byte("\x89PNG\r\n\x1a\n" + strings.Repeat("\x00", 600))
		res, err := op.Upload(ctx, "images/logo", bytes.NewReader(png), int64(len(png)), nil)
		require.NoError(t, err)
		assert.EqualValues(t, len(png), res.BytesWritten, "sniffed bytes are not lost")

		meta, err := op.Stat(ctx, "images/logo")
		require.NoError(t, err)
		assert.Equal(t, "image/png", meta.ContentType)
	})

	t.Run("explicit content type and metadata", func(t *testing.T) {
		_, err := op.Upload(ctx, "data.bin", strings.NewReader("x"), 1, &storekit.UploadOptions{
			ContentType: "application/x-custom",
			Metadata:    map[string]string{"source": "test"},
		})
		require.NoError(t, err)
		meta, err := op.Stat(ctx, "data.bin")
		require.NoError(t, err)
		assert.Equal(t, "application/x-custom", meta.ContentType)
		assert.Equal(t, "test", meta.UserMetadata["source"])
	})

	t.Run("if not exists", func(t *testing.T) {
		_, err := op.Upload(ctx, "data.bin", strings.NewReader("y"), 1, &storekit.UploadOptions{IfNotExists: true})
		assert.True(t, storekit.IsExist(err), "got %v", err)
	})
}

func TestUploadProgress(t *testing.T) {
	ctx := context.Background()
	op := storekit.NewOperator(memory.New())

	content := strings.Repeat("a", 10_000)
	var calls []int64
	_, err := op.Upload(ctx, "big.txt", strings.NewReader(content), int64(len(content)), &storekit.UploadOptions{
		Progress: func(done, total int64) {
			assert.EqualValues(t, len(content), total)
			calls = append(calls, done)
		},
		ReportEvery: 4096,
	})
	require.NoError(t, err)

	require.NotEmpty(t, calls)
	assert.EqualValues(t, len(content), calls[len(calls)-1])
	for i := 1; i < len(calls); i++ {
		assert.GreaterOrEqual(t, calls[i], calls[i-1])
	}
}

func TestGuessContentType(t *testing.T) {
	tests := []struct {
		path string
		data []byte
		want string
	}{
		{"notes.txt", nil, "text/plain"},
		{"DATA.JSON", nil, "application/json"},
		{"run.log", nil, "text/plain"},
		{"page", []byte("<html><body>hi</body></html>"), "text/html; charset=utf-8"},
		{"blob", nil, storekit.MIMETypeOctetStream},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, storekit.GuessContentType(tt.path, tt.data))
		})
	}
}
