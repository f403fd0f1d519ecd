package transcriber

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestModelDownloader(t *testing.T) {
	logger := zap.NewNop()

	t.Run("should download a missing model and rename it into place", func(t *testing.T) {
		// Arrange
		var requested string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requested = r.URL.Path
			w.Write([]byte("ggml model bytes"))
		}))
		defer server.Close()
		fs := afero.NewMemMapFs()
		downloader := NewModelDownloaderWithFs(logger, fs, "/models", server.URL)
		modelPath := downloader.GetModelPath("tiny.en")

		// Act
		err := downloader.EnsureModelExists(context.Background(), "tiny.en", modelPath)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "/ggml-tiny.en.bin", requested)
		content, err := afero.ReadFile(fs, modelPath)
		require.NoError(t, err)
		assert.Equal(t, "ggml model bytes", string(content))
		exists, _ := afero.Exists(fs, modelPath+".tmp")
		assert.False(t, exists)
	})

	t.Run("should not download when model already exists", func(t *testing.T) {
		// Arrange
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("unexpected download")
		}))
		defer server.Close()
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, "/models/ggml-test.bin", []byte("dummy model content"), 0644))
		downloader := NewModelDownloaderWithFs(logger, fs, "/models", server.URL)

		// Act
		err := downloader.EnsureModelExists(context.Background(), "test", "/models/ggml-test.bin")

		// Assert
		assert.NoError(t, err)
		content, _ := afero.ReadFile(fs, "/models/ggml-test.bin")
		assert.Equal(t, "dummy model content", string(content))
	})

	t.Run("should leave nothing behind on HTTP errors", func(t *testing.T) {
		// Arrange
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()
		fs := afero.NewMemMapFs()
		downloader := NewModelDownloaderWithFs(logger, fs, "/models", server.URL)
		modelPath := downloader.GetModelPath("base.en")

		// Act
		err := downloader.EnsureModelExists(context.Background(), "base.en", modelPath)

		// Assert
		require.Error(t, err)
		assert.Contains(t, err.Error(), "HTTP 404")
		exists, _ := afero.Exists(fs, modelPath)
		assert.False(t, exists)
	})

	t.Run("should refuse unknown model names", func(t *testing.T) {
		downloader := NewModelDownloaderWithFs(logger, afero.NewMemMapFs(), "/models", "http://invalid")

		err := downloader.EnsureModelExists(context.Background(), "gigantic", "/models/ggml-gigantic.bin")

		assert.Error(t, err)
	})

	t.Run("should describe available models", func(t *testing.T) {
		downloader := NewModelDownloader(logger, "/tmp")

		assert.Contains(t, downloader.GetAvailableModels(), "base.en")
		assert.Contains(t, downloader.GetAvailableModels(), "large-v3")
		assert.True(t, downloader.IsValidModelName("BASE.EN"))
		assert.False(t, downloader.IsValidModelName("invalid-model"))
		assert.Equal(t, "142 MB", downloader.GetModelSize("base.en"))
		assert.Equal(t, "Unknown", downloader.GetModelSize("invalid"))
		assert.Equal(t, "/tmp/ggml-base.en.bin", downloader.GetModelPath("base.en"))
	})

	t.Run("should log download progress at most once per interval", func(t *testing.T) {
		// Arrange
		core, logs := observer.New(zap.InfoLevel)
		progress := &progressWriter{
			logger:   zap.New(core),
			total:    100,
			interval: time.Hour,
			last:     time.Now(),
		}

		// Act
		n, err := progress.Write(make([]byte, 40))
		progress.last = time.Time{}
		progress.Write(make([]byte, 10))
		progress.Write(make([]byte, 50))

		// Assert
		require.NoError(t, err)
		assert.Equal(t, 40, n)
		assert.Equal(t, int64(100), progress.written)
		entries := logs.FilterMessage("model download").All()
		require.Len(t, entries, 1)
		fields := entries[0].ContextMap()
		assert.Equal(t, int64(50), fields["bytes"])
		assert.Equal(t, float64(50), fields["percent"])
	})

	t.Run("should match model names case-insensitively", func(t *testing.T) {
		downloader := NewModelDownloader(logger, "/tmp")

		assert.Equal(t, "1.5 GB", downloader.GetModelSize("LARGE-V3"))
		assert.Equal(t, "tiny.en", downloader.GetAvailableModels()[0])
	})
}
