package transcriber

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"lukechampine.com/blake3"
)

// DefaultModelBaseURL hosts the ggml whisper.cpp models
const DefaultModelBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"

const progressInterval = 10 * time.Second

type ggmlModel struct {
	name string
	size string
}

// smallest first
var ggmlModels = []ggmlModel{
	{"tiny.en", "39 MB"}, {"tiny", "39 MB"},
	{"base.en", "142 MB"}, {"base", "142 MB"},
	{"small.en", "244 MB"}, {"small", "244 MB"},
	{"medium.en", "769 MB"}, {"medium", "769 MB"},
	{"large-v1", "1.5 GB"}, {"large-v2", "1.5 GB"}, {"large-v3", "1.5 GB"},
}

// ModelDownloader fetches ggml Whisper models into a models directory
type ModelDownloader struct {
	logger    *zap.Logger
	fs        afero.Fs
	modelsDir string
	client    *http.Client
	baseURL   string
}

// NewModelDownloader creates a downloader writing to modelsDir on the OS filesystem
func NewModelDownloader(logger *zap.Logger, modelsDir string) *ModelDownloader {
	return NewModelDownloaderWithFs(logger, afero.NewOsFs(), modelsDir, DefaultModelBaseURL)
}

// NewModelDownloaderWithFs creates a downloader over an arbitrary filesystem and mirror
func NewModelDownloaderWithFs(logger *zap.Logger, fs afero.Fs, modelsDir, baseURL string) *ModelDownloader {
	return &ModelDownloader{
		logger:    logger,
		fs:        fs,
		modelsDir: modelsDir,
		client:    &http.Client{Timeout: 10 * time.Minute},
		baseURL:   strings.TrimRight(baseURL, "/"),
	}
}

func lookupModel(name string) (ggmlModel, bool) {
	for _, m := range ggmlModels {
		if strings.EqualFold(m.name, name) {
			return m, true
		}
	}
	return ggmlModel{}, false
}

// GetAvailableModels returns the model names known to the mirror, smallest first
func (d *ModelDownloader) GetAvailableModels() []string {
	names := make([]string, len(ggmlModels))
	for i, m := range ggmlModels {
		names[i] = m.name
	}
	return names
}

// IsValidModelName reports whether the mirror serves name (case-insensitive)
func (d *ModelDownloader) IsValidModelName(name string) bool {
	_, ok := lookupModel(name)
	return ok
}

// GetModelSize returns approximate download size for a known model
func (d *ModelDownloader) GetModelSize(name string) string {
	if m, ok := lookupModel(name); ok {
		return m.size
	}
	return "Unknown"
}

// GetModelPath maps a model name to its ggml file under the models directory
func (d *ModelDownloader) GetModelPath(name string) string {
	return filepath.Join(d.modelsDir, "ggml-"+name+".bin")
}

// EnsureModelExists downloads modelName to modelPath unless a file is already there
func (d *ModelDownloader) EnsureModelExists(ctx context.Context, modelName, modelPath string) error {
	if _, err := d.fs.Stat(modelPath); err == nil {
		d.logger.Debug("using cached whisper model",
			zap.String("model", modelName),
			zap.String("path", modelPath))
		return nil
	}

	m, ok := lookupModel(modelName)
	if !ok {
		return fmt.Errorf("unknown whisper model %q", modelName)
	}

	d.logger.Info("fetching whisper model",
		zap.String("model", m.name),
		zap.String("path", modelPath),
		zap.String("size", m.size))

	if err := d.fs.MkdirAll(filepath.Dir(modelPath), 0755); err != nil {
		return fmt.Errorf("models dir: %w", err)
	}

	return d.fetch(ctx, m.name, modelPath)
}

// fetch streams the model into modelPath.tmp and renames it once complete
func (d *ModelDownloader) fetch(ctx context.Context, name, modelPath string) error {
	url := fmt.Sprintf("%s/ggml-%s.bin", d.baseURL, name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("model request %s: %w", url, err)
	}
	req.Header.Set("User-Agent", "videocutter")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: HTTP %d", url, resp.StatusCode)
	}

	partial := modelPath + ".tmp"
	out, err := d.fs.Create(partial)
	if err != nil {
		return fmt.Errorf("create %s: %w", partial, err)
	}
	defer d.fs.Remove(partial)

	hasher := blake3.New(32, nil)
	progress := &progressWriter{
		logger:   d.logger.With(zap.String("model", name)),
		total:    resp.ContentLength,
		interval: progressInterval,
		last:     time.Now(),
	}
	written, err := io.Copy(io.MultiWriter(out, hasher, progress), resp.Body)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", partial, err)
	}

	if resp.ContentLength > 0 && written != resp.ContentLength {
		return fmt.Errorf("truncated model %s: %d of %d bytes", name, written, resp.ContentLength)
	}

	if err := d.fs.Rename(partial, modelPath); err != nil {
		return fmt.Errorf("install %s: %w", modelPath, err)
	}

	d.logger.Info("whisper model ready",
		zap.String("model", name),
		zap.String("path", modelPath),
		zap.Int64("bytes", written),
		zap.String("blake3", hex.EncodeToString(hasher.Sum(nil))))

	return nil
}

// progressWriter counts bytes and logs at most once per interval
type progressWriter struct {
	logger   *zap.Logger
	total    int64
	interval time.Duration
	written  int64
	last     time.Time
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if now := time.Now(); now.Sub(p.last) >= p.interval {
		p.last = now
		fields := []zap.Field{zap.Int64("bytes", p.written)}
		if p.total > 0 {
			fields = append(fields,
				zap.Int64("of", p.total),
				zap.Float64("percent", float64(p.written)/float64(p.total)*100))
		}
		p.logger.Info("model download", fields...)
	}
	return len(b), nil
}
