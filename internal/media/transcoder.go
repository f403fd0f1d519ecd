package media

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"videocutter/internal/export"
	"videocutter/internal/segments"
)

// ErrNothingToExport is returned when the kept plan is empty
var ErrNothingToExport = errors.New("no segments to export")

// Info is the subset of ffprobe metadata the editor needs
type Info struct {
	Duration float64
	FPS      float64
	Width    int
	Height   int
	HasVideo bool
	HasAudio bool
}

// ProgressFunc receives export progress in percent
type ProgressFunc func(percent float64)

// Transcoder drives ffmpeg and ffprobe as child processes
type Transcoder struct {
	logger      *zap.Logger
	ffmpegPath  string
	ffprobePath string
	videoCodec  string
	audioCodec  string
}

// NewTranscoder creates a Transcoder using the given executables
func NewTranscoder(ffmpegPath, ffprobePath string, logger *zap.Logger) *Transcoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transcoder{
		logger:      logger,
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		videoCodec:  "libx264",
		audioCodec:  "aac",
	}
}

type probeStream struct {
	CodecType  string `json:"codec_type"`
	RFrameRate string `json:"r_frame_rate"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []probeStream `json:"streams"`
}

// Probe reads duration, frame rate and stream layout
func (t *Transcoder) Probe(ctx context.Context, path string) (Info, error) {
	cmd := exec.CommandContext(ctx, t.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Info{}, fmt.Errorf("ffprobe failed for %s: %w: %s", path, err, diagnostic(stderr.String()))
	}

	info, err := parseProbe(stdout.Bytes())
	if err != nil {
		return Info{}, fmt.Errorf("failed to parse ffprobe output for %s: %w", path, err)
	}

	t.logger.Debug("probed media",
		zap.String("path", path),
		zap.Float64("duration", info.Duration),
		zap.Float64("fps", info.FPS),
		zap.Bool("has_audio", info.HasAudio))
	return info, nil
}

func parseProbe(data []byte) (Info, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return Info{}, err
	}

	var info Info
	if out.Format.Duration != "" {
		d, err := decimal.NewFromString(out.Format.Duration)
		if err != nil {
			return Info{}, fmt.Errorf("invalid duration %q: %w", out.Format.Duration, err)
		}
		info.Duration = d.InexactFloat64()
	}

	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if info.HasVideo {
				continue
			}
			info.HasVideo = true
			info.Width, info.Height = s.Width, s.Height
			fps, err := parseFrameRate(s.RFrameRate)
			if err != nil {
				return Info{}, err
			}
			info.FPS = fps
		case "audio":
			info.HasAudio = true
		}
	}
	return info, nil
}

// parseFrameRate reads an ffprobe fraction such as "24000/1001"
func parseFrameRate(rate string) (float64, error) {
	if rate == "" {
		return 0, nil
	}
	num, den, found := strings.Cut(rate, "/")
	n, err := decimal.NewFromString(num)
	if err != nil {
		return 0, fmt.Errorf("invalid frame rate %q: %w", rate, err)
	}
	if !found {
		return n.InexactFloat64(), nil
	}
	d, err := decimal.NewFromString(den)
	if err != nil {
		return 0, fmt.Errorf("invalid frame rate %q: %w", rate, err)
	}
	if d.IsZero() {
		return 0, nil
	}
	return n.DivRound(d, 6).InexactFloat64(), nil
}

// ExtractAudio decodes the audio track to signed 16-bit PCM at sampleRate. Stereo output is
// interleaved. On failure no samples are returned.
func (t *Transcoder) ExtractAudio(ctx context.Context, path string, sampleRate int, mono bool) ([]int16, error) {
	args := []string{
		"-hide_banner",
		"-v", "error",
		"-i", path,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(sampleRate),
	}
	if mono {
		args = append(args, "-ac", "1")
	}
	args = append(args, "-f", "s16le", "pipe:1")

	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	t.logger.Info("extracting audio",
		zap.String("path", path),
		zap.Int("sample_rate", sampleRate),
		zap.Bool("mono", mono))

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("audio extraction failed for %s: %w: %s", path, err, diagnostic(stderr.String()))
	}

	raw := stdout.Bytes()
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[2*i:]))
	}

	t.logger.Info("audio extracted",
		zap.String("path", path),
		zap.Int("samples", len(samples)))
	return samples, nil
}

// FilterScript builds the filter graph that trims every kept range and concatenates them in order
func FilterScript(kept []segments.Range) string {
	var b strings.Builder
	for i, r := range kept {
		start, end := formatSeconds(r.Start), formatSeconds(r.End)
		fmt.Fprintf(&b, "[0:v]trim=start=%s:end=%s,setpts=PTS-STARTPTS[v%d];\n", start, end, i)
		fmt.Fprintf(&b, "[0:a]atrim=start=%s:end=%s,asetpts=PTS-STARTPTS[a%d];\n", start, end, i)
	}
	for i := range kept {
		fmt.Fprintf(&b, "[v%d]", i)
	}
	fmt.Fprintf(&b, "concat=n=%d:v=1:a=0[outv];\n", len(kept))
	for i := range kept {
		fmt.Fprintf(&b, "[a%d]", i)
	}
	fmt.Fprintf(&b, "concat=n=%d:v=0:a=1[outa]\n", len(kept))
	return b.String()
}

func formatSeconds(v float64) string {
	return decimal.NewFromFloat(v).String()
}

// ExportWithCuts renders the kept ranges of in to out. ffmpeg writes to a temporary file in
// out's directory which replaces out only when ffmpeg succeeds.
func (t *Transcoder) ExportWithCuts(ctx context.Context, in, out string, kept []segments.Range, progress ProgressFunc) error {
	if len(kept) == 0 {
		return ErrNothingToExport
	}

	script, err := os.CreateTemp("", "videocutter-filter-*.txt")
	if err != nil {
		return fmt.Errorf("failed to create filter script: %w", err)
	}
	defer os.Remove(script.Name())
	if _, err := script.WriteString(FilterScript(kept)); err != nil {
		script.Close()
		return fmt.Errorf("failed to write filter script: %w", err)
	}
	if err := script.Close(); err != nil {
		return fmt.Errorf("failed to write filter script: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(out), ".videocutter-export-*"+filepath.Ext(out))
	if err != nil {
		return fmt.Errorf("failed to create temporary output: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	cmd := exec.CommandContext(ctx, t.ffmpegPath,
		"-hide_banner",
		"-nostats",
		"-v", "error",
		"-y",
		"-i", in,
		"-filter_complex_script", script.Name(),
		"-map", "[outv]",
		"-map", "[outa]",
		"-c:v", t.videoCodec,
		"-c:a", t.audioCodec,
		"-progress", "pipe:1",
		tmpPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	t.logger.Info("starting export",
		zap.String("input", in),
		zap.String("output", out),
		zap.Int("segments", len(kept)))

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	t.readProgress(stdout, export.KeptDuration(kept), progress)

	if err := cmd.Wait(); err != nil {
		t.logger.Warn("export failed", zap.Error(err), zap.String("stderr", diagnostic(stderr.String())))
		return fmt.Errorf("ffmpeg export failed: %w: %s", err, diagnostic(stderr.String()))
	}

	if err := os.Rename(tmpPath, out); err != nil {
		return fmt.Errorf("failed to move export into place: %w", err)
	}
	committed = true

	t.logger.Info("export completed", zap.String("output", out))
	return nil
}

// readProgress turns ffmpeg -progress key=value lines into monotonic percentages
func (t *Transcoder) readProgress(r io.Reader, total float64, progress ProgressFunc) {
	last := -1.0
	report := func(p float64) {
		if p > 100 {
			p = 100
		}
		if p <= last {
			return
		}
		last = p
		if progress != nil {
			progress(p)
		}
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "out_time_us", "out_time_ms":
			us, err := strconv.ParseInt(value, 10, 64)
			if err != nil || total <= 0 {
				continue
			}
			report(float64(us) / 1e6 / total * 100)
		case "progress":
			if value == "end" {
				report(100)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		t.logger.Debug("progress reading stopped", zap.Error(err))
	}
}

// diagnostic trims ffmpeg stderr to its last few lines
func diagnostic(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.Join(lines, "; ")
}
