package transcriber

import (
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// JSONOutput writes tokens and run summaries as JSON lines
type JSONOutput struct {
	writer io.Writer
	logger *zap.Logger
}

type tokenLine struct {
	Type    string  `json:"type"`
	Chunk   int     `json:"chunk"`
	Partial bool    `json:"partial,omitempty"`
	Text    string  `json:"text"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

type progressLine struct {
	Type     string  `json:"type"`
	Progress float64 `json:"progress"`
}

type failureLine struct {
	Type  string `json:"type"`
	Chunk int    `json:"chunk"`
	Error string `json:"error"`
}

type summaryLine struct {
	Type      string  `json:"type"`
	Chunks    int     `json:"chunks"`
	Completed int     `json:"completed"`
	Failed    int     `json:"failed"`
	Tokens    int     `json:"tokens"`
	ElapsedMS int64   `json:"elapsed_ms"`
	Coverage  float64 `json:"coverage"`
}

// NewJSONOutput creates a new JSONOutput instance
func NewJSONOutput(writer io.Writer, logger *zap.Logger) *JSONOutput {
	return &JSONOutput{
		writer: writer,
		logger: logger,
	}
}

// OutputToken writes one token line. Invalid tokens are rejected.
func (jo *JSONOutput) OutputToken(chunk int, token Token, partial bool) error {
	if err := token.Validate(); err != nil {
		jo.logger.Error("invalid token", zap.Error(err))
		return fmt.Errorf("invalid token: %w", err)
	}

	return jo.writeLine(tokenLine{
		Type:    "token",
		Chunk:   chunk,
		Partial: partial,
		Text:    token.Text,
		Start:   token.Start,
		End:     token.End,
	})
}

// OutputUpdate writes the lines describing a scheduler update
func (jo *JSONOutput) OutputUpdate(u Update) error {
	switch u.Kind {
	case UpdateTokens:
		for _, token := range u.Tokens {
			if err := jo.OutputToken(u.ChunkIndex, token, u.Partial); err != nil {
				return err
			}
		}
		return nil
	case UpdateProgress:
		return jo.writeLine(progressLine{Type: "progress", Progress: u.Progress})
	case UpdateChunkFailed:
		return jo.writeLine(failureLine{Type: "chunk_failed", Chunk: u.ChunkIndex, Error: fmt.Sprint(u.Err)})
	case UpdateDone:
		if u.Summary == nil {
			return fmt.Errorf("done update without summary")
		}
		return jo.OutputSummary(*u.Summary)
	default:
		return fmt.Errorf("unknown update kind %d", u.Kind)
	}
}

// OutputSummary writes the final summary line
func (jo *JSONOutput) OutputSummary(s Summary) error {
	coverage := 0.0
	if s.TotalChunks > 0 {
		coverage = float64(s.Completed) / float64(s.TotalChunks)
	}
	return jo.writeLine(summaryLine{
		Type:      "summary",
		Chunks:    s.TotalChunks,
		Completed: s.Completed,
		Failed:    len(s.Failed),
		Tokens:    len(s.Tokens),
		ElapsedMS: s.Elapsed.Milliseconds(),
		Coverage:  coverage,
	})
}

func (jo *JSONOutput) writeLine(v interface{}) error {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		jo.logger.Error("failed to marshal JSON line", zap.Error(err))
		return fmt.Errorf("failed to marshal JSON line: %w", err)
	}

	if _, err := fmt.Fprintf(jo.writer, "%s\n", jsonBytes); err != nil {
		jo.logger.Error("failed to write JSON output", zap.Error(err))
		return fmt.Errorf("failed to write JSON output: %w", err)
	}
	return nil
}
