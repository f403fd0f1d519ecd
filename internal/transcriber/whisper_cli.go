package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// WhisperCLIModel runs the whisper.cpp command line tool once per chunk
type WhisperCLIModel struct {
	logger     *zap.Logger
	binary     string
	sampleRate int
	threads    int

	modelPath string
	useGPU    bool
}

// NewWhisperCLIModel creates a model that shells out to binary
func NewWhisperCLIModel(binary string, sampleRate int, logger *zap.Logger) *WhisperCLIModel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WhisperCLIModel{
		logger:     logger,
		binary:     binary,
		sampleRate: sampleRate,
	}
}

// SetThreads sets the per-invocation thread count, 0 leaves the CLI default
func (m *WhisperCLIModel) SetThreads(threads int) {
	m.threads = threads
}

// Load checks that the binary and model file exist
func (m *WhisperCLIModel) Load(modelPath string, useGPU bool) error {
	if _, err := exec.LookPath(m.binary); err != nil {
		return fmt.Errorf("whisper binary %q not found: %w", m.binary, err)
	}
	info, err := os.Stat(modelPath)
	if err != nil {
		return fmt.Errorf("failed to stat model: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("model path %s is a directory", modelPath)
	}

	m.modelPath = modelPath
	m.useGPU = useGPU
	m.logger.Info("whisper model ready",
		zap.String("binary", m.binary),
		zap.String("model", modelPath),
		zap.Int64("model_bytes", info.Size()),
		zap.Bool("use_gpu", useGPU))
	return nil
}

// Transcribe writes samples to a temporary WAV and decodes the CLI's full JSON output
func (m *WhisperCLIModel) Transcribe(ctx context.Context, samples []float32) ([]Segment, error) {
	dir, err := os.MkdirTemp("", "videocutter-chunk-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create chunk directory: %w", err)
	}
	defer os.RemoveAll(dir)

	wavPath := filepath.Join(dir, "chunk.wav")
	f, err := os.Create(wavPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create chunk wav: %w", err)
	}
	if err := encodeWAV(f, samples, m.sampleRate); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close chunk wav: %w", err)
	}

	prefix := filepath.Join(dir, "chunk")
	cmd := exec.CommandContext(ctx, m.binary, m.args(wavPath, prefix)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("whisper failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	out, err := os.ReadFile(prefix + ".json")
	if err != nil {
		return nil, fmt.Errorf("failed to read whisper output: %w", err)
	}
	return parseWhisperJSON(out)
}

// Close is a no-op; each invocation owns its process
func (m *WhisperCLIModel) Close() error {
	return nil
}

func (m *WhisperCLIModel) args(wavPath, prefix string) []string {
	args := []string{
		"-m", m.modelPath,
		"-f", wavPath,
		"-ojf",
		"-of", prefix,
		"-np",
	}
	if m.threads > 0 {
		args = append(args, "-t", strconv.Itoa(m.threads))
	}
	if !m.useGPU {
		args = append(args, "-ng")
	}
	return args
}

type whisperOffsets struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

type whisperToken struct {
	Text    string         `json:"text"`
	Offsets whisperOffsets `json:"offsets"`
}

type whisperSegment struct {
	Text    string         `json:"text"`
	Offsets whisperOffsets `json:"offsets"`
	Tokens  []whisperToken `json:"tokens"`
}

type whisperOutput struct {
	Transcription []whisperSegment `json:"transcription"`
}

// parseWhisperJSON converts whisper.cpp full JSON into segments. Control tokens such as
// [_BEG_] and [_TT_150] are dropped.
func parseWhisperJSON(data []byte) ([]Segment, error) {
	var out whisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse whisper output: %w", err)
	}

	segments := make([]Segment, 0, len(out.Transcription))
	for _, ws := range out.Transcription {
		seg := Segment{Text: strings.TrimSpace(ws.Text)}
		for _, wt := range ws.Tokens {
			if strings.HasPrefix(wt.Text, "[_") || strings.TrimSpace(wt.Text) == "" {
				continue
			}
			seg.Tokens = append(seg.Tokens, TokenTiming{
				Text: wt.Text,
				T0:   millisToSeconds(wt.Offsets.From),
				T1:   millisToSeconds(wt.Offsets.To),
			})
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

func millisToSeconds(ms int64) float64 {
	return decimal.New(ms, -3).InexactFloat64()
}
