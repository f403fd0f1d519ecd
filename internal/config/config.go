package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable read by NewConfigurationFromEnv
const EnvPrefix = "VIDEOCUTTER"

// DefaultWhisperModel is used when neither a model path nor a model name is configured
const DefaultWhisperModel = "base.en"

// Configuration provides type-safe access to application settings
type Configuration struct {
	viper *viper.Viper
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("audio.sample_rate", 16000)
	v.SetDefault("waveform.sample_rate", 44100)
	v.SetDefault("waveform.points", 10000)
	v.SetDefault("transcription.chunk_duration_sec", 30)
	v.SetDefault("transcription.chunk_timeout_sec", 120)
	v.SetDefault("transcription.max_in_flight", 4)
	v.SetDefault("transcription.workers", 2)
	v.SetDefault("transcription.emit_partials", true)
	v.SetDefault("whisper.models_dir", "./models")
	v.SetDefault("whisper.binary", "whisper-cli")
	v.SetDefault("whisper.use_gpu", "auto")
	v.SetDefault("whisper.server_url", "")
	v.SetDefault("ffmpeg.path", "ffmpeg")
	v.SetDefault("ffprobe.path", "ffprobe")
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.path", "./cache/transcripts.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("debug", false)
}

// NewConfiguration creates a new Configuration instance with default settings
func NewConfiguration() *Configuration {
	v := viper.New()
	setDefaults(v)
	return &Configuration{viper: v}
}

// NewConfigurationFromFile creates a Configuration instance from a config file.
// Environment variables still override file values.
func NewConfigurationFromFile(configFile string) (*Configuration, error) {
	v := viper.New()
	setDefaults(v)
	bindEnv(v)
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	return &Configuration{viper: v}, nil
}

// NewConfigurationFromEnv creates a Configuration instance that reads from environment variables
func NewConfigurationFromEnv() (*Configuration, error) {
	v := viper.New()
	setDefaults(v)
	bindEnv(v)
	return &Configuration{viper: v}, nil
}

// bindEnv maps nested keys onto VIDEOCUTTER_SECTION_KEY variables
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Short aliases kept for compatibility with existing whisper setups
	v.BindEnv("whisper.model_path", EnvPrefix+"_WHISPER_MODEL_PATH", "WHISPER_MODEL_PATH")
	v.BindEnv("whisper.model_name", EnvPrefix+"_WHISPER_MODEL_NAME", "WHISPER_MODEL")
}

// Watch re-reads the config file on change and invokes onChange afterwards.
// It is a no-op for configurations without a backing file.
func (c *Configuration) Watch(logger *zap.Logger, onChange func(*Configuration)) {
	if c.viper.ConfigFileUsed() == "" {
		return
	}

	c.viper.OnConfigChange(func(e fsnotify.Event) {
		logger.Info("configuration file changed",
			zap.String("file", e.Name),
			zap.String("op", e.Op.String()))
		if onChange != nil {
			onChange(c)
		}
	})
	c.viper.WatchConfig()
}

// GetSampleRate returns the PCM sample rate used for transcription
func (c *Configuration) GetSampleRate() int {
	return c.viper.GetInt("audio.sample_rate")
}

// GetWaveformSampleRate returns the sample rate used when extracting audio for display
func (c *Configuration) GetWaveformSampleRate() int {
	return c.viper.GetInt("waveform.sample_rate")
}

// GetWaveformPoints returns the display resolution of the waveform
func (c *Configuration) GetWaveformPoints() int {
	return c.viper.GetInt("waveform.points")
}

// GetTranscriptionChunkDurationSec returns the configured chunk duration in seconds
func (c *Configuration) GetTranscriptionChunkDurationSec() int {
	return c.viper.GetInt("transcription.chunk_duration_sec")
}

// GetTranscriptionChunkDuration returns the chunk duration as a time.Duration
func (c *Configuration) GetTranscriptionChunkDuration() time.Duration {
	return time.Duration(c.GetTranscriptionChunkDurationSec()) * time.Second
}

// GetTranscriptionChunkTimeout returns how long a dispatched chunk may stay outstanding
func (c *Configuration) GetTranscriptionChunkTimeout() time.Duration {
	return time.Duration(c.viper.GetInt("transcription.chunk_timeout_sec")) * time.Second
}

// GetTranscriptionMaxInFlight returns how many chunks may be dispatched concurrently
func (c *Configuration) GetTranscriptionMaxInFlight() int {
	return c.viper.GetInt("transcription.max_in_flight")
}

// GetTranscriptionWorkers returns the local engine worker count
func (c *Configuration) GetTranscriptionWorkers() int {
	return c.viper.GetInt("transcription.workers")
}

// GetTranscriptionEmitPartials reports whether the local engine reports partial results
func (c *Configuration) GetTranscriptionEmitPartials() bool {
	return c.viper.GetBool("transcription.emit_partials")
}

// GetWhisperModelName returns the configured Whisper model name
func (c *Configuration) GetWhisperModelName() string {
	return c.viper.GetString("whisper.model_name")
}

// GetWhisperModelPath returns the configured Whisper model path. An explicit path wins,
// then a path derived from the model name, then the bundled base.en model.
func (c *Configuration) GetWhisperModelPath() string {
	if path := c.viper.GetString("whisper.model_path"); path != "" {
		return path
	}

	name := c.GetWhisperModelName()
	if name == "" {
		name = DefaultWhisperModel
	}
	return filepath.Join(c.GetWhisperModelsDir(), fmt.Sprintf("ggml-%s.bin", name))
}

// GetWhisperModelsDir returns the directory models are downloaded into
func (c *Configuration) GetWhisperModelsDir() string {
	return c.viper.GetString("whisper.models_dir")
}

// GetWhisperBinary returns the whisper.cpp CLI executable
func (c *Configuration) GetWhisperBinary() string {
	return c.viper.GetString("whisper.binary")
}

// GetWhisperUseGPU returns "auto", "true" or "false"
func (c *Configuration) GetWhisperUseGPU() string {
	return strings.ToLower(c.viper.GetString("whisper.use_gpu"))
}

// GetWhisperServerURL returns the remote whisper server, empty for local transcription
func (c *Configuration) GetWhisperServerURL() string {
	return c.viper.GetString("whisper.server_url")
}

// GetFFmpegPath returns the ffmpeg executable
func (c *Configuration) GetFFmpegPath() string {
	return c.viper.GetString("ffmpeg.path")
}

// GetFFprobePath returns the ffprobe executable
func (c *Configuration) GetFFprobePath() string {
	return c.viper.GetString("ffprobe.path")
}

// GetCacheEnabled reports whether finished transcripts are cached
func (c *Configuration) GetCacheEnabled() bool {
	return c.viper.GetBool("cache.enabled")
}

// GetCachePath returns the transcript cache database file
func (c *Configuration) GetCachePath() string {
	return c.viper.GetString("cache.path")
}

// GetLogLevel returns the configured log level name
func (c *Configuration) GetLogLevel() string {
	return c.viper.GetString("log.level")
}

// GetLogDevelopment reports whether the development logger is requested
func (c *Configuration) GetLogDevelopment() bool {
	return c.viper.GetBool("log.development")
}

// GetDebugMode returns whether debug mode is enabled
func (c *Configuration) GetDebugMode() bool {
	return c.viper.GetBool("debug")
}

// Set overrides a single key, used by CLI flags
func (c *Configuration) Set(key string, value interface{}) {
	c.viper.Set(key, value)
}

// YAML renders the effective settings
func (c *Configuration) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c.viper.AllSettings())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal configuration: %w", err)
	}
	return out, nil
}
