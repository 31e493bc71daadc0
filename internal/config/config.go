package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Workers       WorkersConfig       `yaml:"workers" toml:"workers"`
	Session       SessionConfig       `yaml:"session" toml:"session"`
	Pipeline      PipelineConfig      `yaml:"pipeline" toml:"pipeline"`
	Retry         RetryConfig         `yaml:"retry" toml:"retry"`
	Transcription TranscriptionConfig `yaml:"transcription" toml:"transcription"`
	Language      LanguageConfig      `yaml:"language" toml:"language"`
	Upload        UploadConfig        `yaml:"upload" toml:"upload"`
	Paths         PathsConfig         `yaml:"paths" toml:"paths"`
	Logging       LoggingConfig       `yaml:"logging" toml:"logging"`
	HTTP          HTTPConfig          `yaml:"http" toml:"http"`
	Database      DatabaseConfig      `yaml:"database" toml:"database"`
	Gateway       GatewayConfig       `yaml:"gateway" toml:"gateway"`
	Recovery      RecoveryConfig      `yaml:"recovery" toml:"recovery"`
}

type WorkerEntry struct {
	ID    string `yaml:"id" toml:"id"`
	Name  string `yaml:"name" toml:"name"`
	Token string `yaml:"token" toml:"token"`
}

type WorkersConfig struct {
	Pool []WorkerEntry `yaml:"pool" toml:"pool"`
	// PendingTimeout drops sessions that waited this long for a worker.
	PendingTimeout time.Duration `yaml:"pending_timeout" toml:"pending_timeout"`
	// ScheduleInterval retries binding of waiting sessions.
	ScheduleInterval time.Duration `yaml:"schedule_interval" toml:"schedule_interval"`
}

type SessionConfig struct {
	// TriggerChannel is the lobby channel; joining it opens a new meeting.
	TriggerChannel string        `yaml:"trigger_channel" toml:"trigger_channel"`
	RoomPrefix     string        `yaml:"room_prefix" toml:"room_prefix"`
	CloseDebounce  time.Duration `yaml:"close_debounce" toml:"close_debounce"`
	FinalizeWait   time.Duration `yaml:"finalize_wait" toml:"finalize_wait"`
	// FinalizeGrace is how long a cancelled pipeline may take to hand back
	// what it has after FinalizeWait.
	FinalizeGrace time.Duration `yaml:"finalize_grace" toml:"finalize_grace"`
	// NotifyTimeout bounds every thread notice and result post.
	NotifyTimeout time.Duration `yaml:"notify_timeout" toml:"notify_timeout"`
	// Retention keeps closed sessions in memory for the API this long.
	Retention time.Duration `yaml:"retention" toml:"retention"`
}

type PipelineConfig struct {
	MaxSegmentDuration time.Duration `yaml:"max_segment_duration" toml:"max_segment_duration"`
	MaxConcurrent      int           `yaml:"max_concurrent" toml:"max_concurrent"`
	FFmpegPath         string        `yaml:"ffmpeg_path" toml:"ffmpeg_path"`
	FFprobePath        string        `yaml:"ffprobe_path" toml:"ffprobe_path"`
	WriteDocx          bool          `yaml:"write_docx" toml:"write_docx"`
	// EmptyPlaceholder fills every output when no transcript segment survives.
	EmptyPlaceholder string `yaml:"empty_placeholder" toml:"empty_placeholder"`
}

type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts" toml:"max_attempts"`
	InitialDelay   time.Duration `yaml:"initial_delay" toml:"initial_delay"`
	BackoffFactor  float64       `yaml:"backoff_factor" toml:"backoff_factor"`
	JitterFraction float64       `yaml:"jitter_fraction" toml:"jitter_fraction"`
}

type TranscriptionConfig struct {
	Provider      string        `yaml:"provider" toml:"provider"`
	Endpoint      string        `yaml:"endpoint" toml:"endpoint"`
	APIKey        string        `yaml:"api_key" toml:"api_key"`
	Model         string        `yaml:"model" toml:"model"`
	Language      string        `yaml:"language" toml:"language"`
	Timeout       time.Duration `yaml:"timeout" toml:"timeout"`
	MaxConcurrent int           `yaml:"max_concurrent" toml:"max_concurrent"`

	// whisper.cpp provider
	BinaryPath string `yaml:"binary_path" toml:"binary_path"`
	ModelPath  string `yaml:"model_path" toml:"model_path"`
	Threads    int    `yaml:"threads" toml:"threads"`
	Prompt     string `yaml:"prompt" toml:"prompt"`
}

type LanguageConfig struct {
	Provider      string   `yaml:"provider" toml:"provider"`
	Model         string   `yaml:"model" toml:"model"`
	GeminiKeys    []string `yaml:"gemini_api_keys" toml:"gemini_api_keys"`
	AnthropicKey  string   `yaml:"anthropic_api_key" toml:"anthropic_api_key"`
	OutputLang    string   `yaml:"output_language" toml:"output_language"`
	SummaryPrompt string   `yaml:"summary_prompt" toml:"summary_prompt"`
}

type UploadConfig struct {
	Backend         string        `yaml:"backend" toml:"backend"`
	Bucket          string        `yaml:"bucket" toml:"bucket"`
	Region          string        `yaml:"region" toml:"region"`
	Endpoint        string        `yaml:"endpoint" toml:"endpoint"`
	Prefix          string        `yaml:"prefix" toml:"prefix"`
	LocalDir        string        `yaml:"local_dir" toml:"local_dir"`
	BatchSize       int           `yaml:"batch_size" toml:"batch_size"`
	BatchPause      time.Duration `yaml:"batch_pause" toml:"batch_pause"`
	RefreshInterval time.Duration `yaml:"refresh_interval" toml:"refresh_interval"`
	ErrorThreshold  int           `yaml:"error_threshold" toml:"error_threshold"`
	QuotaCooldown   time.Duration `yaml:"quota_cooldown" toml:"quota_cooldown"`
	ResetInterval   time.Duration `yaml:"reset_interval" toml:"reset_interval"`
}

type PathsConfig struct {
	Recordings string `yaml:"recordings" toml:"recordings"`
	Temp       string `yaml:"temp" toml:"temp"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

type HTTPConfig struct {
	Addr      string `yaml:"addr" toml:"addr"`
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

type DatabaseConfig struct {
	URL string `yaml:"url" toml:"url"`
	// Retention deletes archived sessions older than this; zero keeps them.
	Retention time.Duration `yaml:"retention" toml:"retention"`
}

type GatewayConfig struct {
	Addr          string        `yaml:"addr" toml:"addr"`
	ControlToken  string        `yaml:"control_token" toml:"control_token"`
	PingInterval  time.Duration `yaml:"ping_interval" toml:"ping_interval"`
	MaxFrameBytes int64         `yaml:"max_frame_bytes" toml:"max_frame_bytes"`
	// RequestTimeout bounds every control request to the bridge.
	RequestTimeout time.Duration `yaml:"request_timeout" toml:"request_timeout"`
}

type RecoveryConfig struct {
	DropDir       string `yaml:"drop_dir" toml:"drop_dir"`
	MaxConcurrent int    `yaml:"max_concurrent" toml:"max_concurrent"`
}

// Load reads a YAML config, or TOML when the path ends in .toml, applies
// MEETREC_* environment overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parse toml config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse yaml config: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MEETREC_GEMINI_API_KEYS"); v != "" {
		cfg.Language.GeminiKeys = splitList(v)
	}
	if v := os.Getenv("MEETREC_ANTHROPIC_API_KEY"); v != "" {
		cfg.Language.AnthropicKey = v
	}
	if v := os.Getenv("MEETREC_TRANSCRIPTION_API_KEY"); v != "" {
		cfg.Transcription.APIKey = v
	}
	if v := os.Getenv("MEETREC_JWT_SECRET"); v != "" {
		cfg.HTTP.JWTSecret = v
	}
	if v := os.Getenv("MEETREC_CONTROL_TOKEN"); v != "" {
		cfg.Gateway.ControlToken = v
	}
	if v := os.Getenv("MEETREC_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("MEETREC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) Validate() error {
	if len(c.Workers.Pool) == 0 {
		return fmt.Errorf("workers.pool must contain at least one worker")
	}
	seen := make(map[string]bool, len(c.Workers.Pool))
	for i, w := range c.Workers.Pool {
		if w.ID == "" {
			return fmt.Errorf("workers.pool[%d].id is required", i)
		}
		if seen[w.ID] {
			return fmt.Errorf("workers.pool[%d].id %q is duplicated", i, w.ID)
		}
		seen[w.ID] = true
		if w.Name == "" {
			c.Workers.Pool[i].Name = w.ID
		}
	}

	switch c.Transcription.Provider {
	case "":
		c.Transcription.Provider = "gemini"
	case "gemini", "http", "whisper":
	default:
		return fmt.Errorf("transcription.provider %q is not supported", c.Transcription.Provider)
	}
	if c.Transcription.Provider == "http" && c.Transcription.Endpoint == "" {
		return fmt.Errorf("transcription.endpoint is required for the http provider")
	}
	if c.Transcription.Provider == "whisper" {
		if c.Transcription.ModelPath == "" {
			return fmt.Errorf("transcription.model_path is required for the whisper provider")
		}
		if c.Transcription.BinaryPath == "" {
			return fmt.Errorf("transcription.binary_path is required for the whisper provider")
		}
		if c.Transcription.Threads == 0 {
			c.Transcription.Threads = 8
		}
		if c.Transcription.Language == "" {
			c.Transcription.Language = "auto"
		}
	}

	switch c.Language.Provider {
	case "":
		c.Language.Provider = "gemini"
	case "gemini", "anthropic":
	default:
		return fmt.Errorf("language.provider %q is not supported", c.Language.Provider)
	}

	switch c.Upload.Backend {
	case "":
		c.Upload.Backend = "none"
	case "none", "local":
	case "s3":
		if c.Upload.Bucket == "" {
			return fmt.Errorf("upload.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("upload.backend %q is not supported", c.Upload.Backend)
	}
	if c.Upload.Backend == "local" && c.Upload.LocalDir == "" {
		return fmt.Errorf("upload.local_dir is required for the local backend")
	}

	if c.Workers.PendingTimeout == 0 {
		c.Workers.PendingTimeout = 10 * time.Minute
	}
	if c.Workers.ScheduleInterval == 0 {
		c.Workers.ScheduleInterval = 15 * time.Second
	}

	if c.Session.RoomPrefix == "" {
		c.Session.RoomPrefix = "meeting"
	}
	if c.Session.CloseDebounce == 0 {
		c.Session.CloseDebounce = 5 * time.Second
	}
	if c.Session.FinalizeWait == 0 {
		c.Session.FinalizeWait = time.Hour
	}
	if c.Session.FinalizeGrace == 0 {
		c.Session.FinalizeGrace = 5 * time.Second
	}
	if c.Session.NotifyTimeout == 0 {
		c.Session.NotifyTimeout = 30 * time.Second
	}
	if c.Session.Retention == 0 {
		c.Session.Retention = time.Hour
	}

	if c.Pipeline.MaxSegmentDuration == 0 {
		c.Pipeline.MaxSegmentDuration = 30 * time.Minute
	}
	if c.Pipeline.MaxConcurrent == 0 {
		c.Pipeline.MaxConcurrent = 4
	}
	if c.Pipeline.FFmpegPath == "" {
		c.Pipeline.FFmpegPath = "ffmpeg"
	}
	if c.Pipeline.FFprobePath == "" {
		c.Pipeline.FFprobePath = "ffprobe"
	}
	if strings.TrimSpace(c.Pipeline.EmptyPlaceholder) == "" {
		c.Pipeline.EmptyPlaceholder = "(Transcript not available)"
	}

	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.InitialDelay == 0 {
		c.Retry.InitialDelay = time.Second
	}
	if c.Retry.BackoffFactor == 0 {
		c.Retry.BackoffFactor = 2.0
	}

	if c.Transcription.Model == "" {
		c.Transcription.Model = "gemini-2.5-flash"
	}
	if c.Transcription.Timeout == 0 {
		c.Transcription.Timeout = 10 * time.Minute
	}
	if c.Transcription.MaxConcurrent == 0 {
		c.Transcription.MaxConcurrent = 2
	}
	if c.Language.Model == "" {
		if c.Language.Provider == "anthropic" {
			c.Language.Model = "claude-sonnet-4-20250514"
		} else {
			c.Language.Model = "gemini-2.5-flash"
		}
	}
	if c.Language.OutputLang == "" {
		c.Language.OutputLang = "English"
	}

	if c.Upload.BatchSize == 0 {
		c.Upload.BatchSize = 3
	}
	if c.Upload.BatchPause == 0 {
		c.Upload.BatchPause = 2 * time.Second
	}
	if c.Upload.RefreshInterval == 0 {
		c.Upload.RefreshInterval = time.Hour
	}
	if c.Upload.ErrorThreshold == 0 {
		c.Upload.ErrorThreshold = 10
	}
	if c.Upload.QuotaCooldown == 0 {
		c.Upload.QuotaCooldown = 5 * time.Minute
	}
	if c.Upload.ResetInterval == 0 {
		c.Upload.ResetInterval = time.Hour
	}

	if c.Paths.Recordings == "" {
		c.Paths.Recordings = "data/recordings"
	}
	if c.Paths.Temp == "" {
		c.Paths.Temp = "data/temp"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Gateway.Addr == "" {
		c.Gateway.Addr = ":8081"
	}
	if c.Gateway.PingInterval == 0 {
		c.Gateway.PingInterval = 30 * time.Second
	}
	if c.Gateway.MaxFrameBytes == 0 {
		c.Gateway.MaxFrameBytes = 1 << 20
	}
	if c.Gateway.RequestTimeout == 0 {
		c.Gateway.RequestTimeout = 10 * time.Second
	}
	if c.Recovery.MaxConcurrent == 0 {
		c.Recovery.MaxConcurrent = 1
	}

	return nil
}
