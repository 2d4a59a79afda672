package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryObjectStorage(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryObjectStorage("https://files.test")

	t.Run("empty key rejected", func(t *testing.T) {
		assert.Error(t, s.Upload(ctx, "", []byte("x"), "text/plain"))
		_, _, err := s.GenerateDownloadURL(ctx, "", time.Minute)
		assert.Error(t, err)
	})

	t.Run("missing object has no url", func(t *testing.T) {
		_, _, err := s.GenerateDownloadURL(ctx, "nope.csv", time.Minute)
		assert.Error(t, err)
	})

	t.Run("upload then download", func(t *testing.T) {
		data := []byte("a,b\n1,2\n")
		require.NoError(t, s.Upload(ctx, "statements/x.csv", data, "text/csv"))
		data[0] = 'z'

		stored, contentType, ok := s.Get("statements/x.csv")
		require.True(t, ok)
		assert.Equal(t, "a,b\n1,2\n", string(stored))
		assert.Equal(t, "text/csv", contentType)

		url, expiresAt, err := s.GenerateDownloadURL(ctx, "statements/x.csv", time.Minute)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(url, "https://files.test/statements/x.csv?expires="))
		assert.WithinDuration(t, time.Now().Add(time.Minute), expiresAt, 5*time.Second)
	})
}
