package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// HTTPModel sends chunks to a whisper.cpp server's /inference endpoint
type HTTPModel struct {
	serverURL     string
	sampleRate    int
	client        *http.Client
	logger        *zap.Logger
	maxRetries    int
	baseBackoffMs int
	language      string
}

// NewHTTPModel creates a model backed by the whisper server at serverURL
func NewHTTPModel(serverURL string, sampleRate int, logger *zap.Logger) *HTTPModel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPModel{
		serverURL:     strings.TrimRight(serverURL, "/"),
		sampleRate:    sampleRate,
		client:        createInferenceHTTPClient(),
		logger:        logger,
		maxRetries:    3,
		baseBackoffMs: 500,
		language:      "auto",
	}
}

// createInferenceHTTPClient bounds connection setup separately from the inference itself
func createInferenceHTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConns:        16,
		MaxIdleConnsPerHost: 8,
	}
	return &http.Client{Transport: transport}
}

// SetRetryPolicy overrides the retry count and base backoff
func (m *HTTPModel) SetRetryPolicy(maxRetries, baseBackoffMs int) {
	m.maxRetries = maxRetries
	m.baseBackoffMs = baseBackoffMs
}

// SetLanguage sets the language hint sent with each request
func (m *HTTPModel) SetLanguage(language string) {
	m.language = language
}

// Load validates the server URL. The model is owned by the server, so modelPath is only logged.
func (m *HTTPModel) Load(modelPath string, useGPU bool) error {
	u, err := url.Parse(m.serverURL)
	if err != nil {
		return fmt.Errorf("invalid whisper server url %q: %w", m.serverURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid whisper server url %q: scheme must be http or https", m.serverURL)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid whisper server url %q: missing host", m.serverURL)
	}

	m.logger.Info("using remote whisper server",
		zap.String("url", m.serverURL),
		zap.String("requested_model", modelPath))
	return nil
}

// Transcribe posts the chunk, retrying transient failures with exponential backoff
func (m *HTTPModel) Transcribe(ctx context.Context, samples []float32) ([]Segment, error) {
	var wav bytes.Buffer
	if err := m.encode(&wav, samples); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(m.baseBackoffMs*(1<<uint(attempt-1))) * time.Millisecond
			m.logger.Warn("retrying whisper server request",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		segments, retryable, err := m.post(ctx, wav.Bytes())
		if err == nil {
			return segments, nil
		}
		lastErr = err
		if !retryable || ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("whisper server request failed: %w", lastErr)
}

// Close releases idle connections
func (m *HTTPModel) Close() error {
	m.client.CloseIdleConnections()
	return nil
}

// encode renders the WAV through a temporary file since the encoder needs to seek
func (m *HTTPModel) encode(dst *bytes.Buffer, samples []float32) error {
	f, err := os.CreateTemp("", "videocutter-chunk-*.wav")
	if err != nil {
		return fmt.Errorf("failed to create chunk wav: %w", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	if err := encodeWAV(f, samples, m.sampleRate); err != nil {
		return err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind chunk wav: %w", err)
	}
	if _, err := io.Copy(dst, f); err != nil {
		return fmt.Errorf("failed to read chunk wav: %w", err)
	}
	return nil
}

type inferenceWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type inferenceSegment struct {
	Text  string          `json:"text"`
	Start float64         `json:"start"`
	End   float64         `json:"end"`
	Words []inferenceWord `json:"words"`
}

type inferenceResponse struct {
	Text     string             `json:"text"`
	Segments []inferenceSegment `json:"segments"`
	Error    string             `json:"error"`
}

// post performs one request; retryable reports whether another attempt may succeed
func (m *HTTPModel) post(ctx context.Context, wav []byte) ([]Segment, bool, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "chunk.wav")
	if err != nil {
		return nil, false, fmt.Errorf("failed to build request: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return nil, false, fmt.Errorf("failed to build request: %w", err)
	}
	fields := map[string]string{
		"response_format": "verbose_json",
		"temperature":     "0.0",
		"language":        m.language,
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, false, fmt.Errorf("failed to build request: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, false, fmt.Errorf("failed to build request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.serverURL+"/inference", &body)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("failed to reach whisper server: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read whisper response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return nil, retryable, fmt.Errorf("whisper server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var parsed inferenceResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, false, fmt.Errorf("failed to parse whisper response: %w", err)
	}
	if parsed.Error != "" {
		return nil, false, fmt.Errorf("whisper server error: %s", parsed.Error)
	}

	return inferenceSegments(parsed), false, nil
}

// inferenceSegments prefers word timings and falls back to one token per segment
func inferenceSegments(resp inferenceResponse) []Segment {
	segments := make([]Segment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		seg := Segment{Text: strings.TrimSpace(s.Text)}
		for _, w := range s.Words {
			if strings.TrimSpace(w.Word) == "" {
				continue
			}
			seg.Tokens = append(seg.Tokens, TokenTiming{Text: w.Word, T0: w.Start, T1: w.End})
		}
		if len(seg.Tokens) == 0 && seg.Text != "" {
			seg.Tokens = []TokenTiming{{Text: seg.Text, T0: s.Start, T1: s.End}}
		}
		segments = append(segments, seg)
	}
	return segments
}
