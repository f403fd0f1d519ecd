package subtitle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Entry is one timed subtitle line, in seconds
type Entry struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Validate checks if the Entry has valid values
func (e Entry) Validate() error {
	if strings.TrimSpace(e.Text) == "" {
		return fmt.Errorf("text cannot be empty")
	}
	if e.Start < 0 {
		return fmt.Errorf("start cannot be negative")
	}
	if e.End <= e.Start {
		return fmt.Errorf("end must be greater than start")
	}
	return nil
}

// PathFor returns the side-file colocated with video: <dir>/<stem>_subtitles.json
func PathFor(video string) string {
	dir := filepath.Dir(video)
	stem := strings.TrimSuffix(filepath.Base(video), filepath.Ext(video))
	return filepath.Join(dir, stem+"_subtitles.json")
}

// Store reads and writes subtitle side-files
type Store struct {
	fs     afero.Fs
	logger *zap.Logger
}

// NewStore creates a Store over fs
func NewStore(fs afero.Fs, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{fs: fs, logger: logger}
}

// Load returns the entries in path. A missing or unreadable file yields an empty list.
func (s *Store) Load(path string) []Entry {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read subtitles", zap.String("path", path), zap.Error(err))
		}
		return []Entry{}
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		s.logger.Warn("ignoring corrupt subtitles file", zap.String("path", path), zap.Error(err))
		return []Entry{}
	}
	if entries == nil {
		entries = []Entry{}
	}

	s.logger.Debug("loaded subtitles", zap.String("path", path), zap.Int("entries", len(entries)))
	return entries
}

// Save rewrites path with entries, replacing the old file only once the new one is complete
func (s *Store) Save(path string, entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal subtitles: %w", err)
	}

	tmp := path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0644); err != nil {
		s.fs.Remove(tmp)
		return fmt.Errorf("failed to write subtitles: %w", err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		s.fs.Remove(tmp)
		return fmt.Errorf("failed to replace subtitles file: %w", err)
	}

	s.logger.Info("saved subtitles", zap.String("path", path), zap.Int("entries", len(entries)))
	return nil
}
