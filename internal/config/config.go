package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the namespace prefix for all lectern environment variables.
const EnvPrefix = "LECTERN_"

// Config holds all application configuration. Secrets (API keys) are loaded
// exclusively from environment variables and never appear in the config file.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`

	YTDLPPath  string `yaml:"ytdlp_path"`
	FFmpegPath string `yaml:"ffmpeg_path"`

	Language      string  `yaml:"language"`
	ChunkDuration string  `yaml:"chunk_duration"`
	ChunkOverlap  float64 `yaml:"chunk_overlap"`

	FeedbackModel     string `yaml:"feedback_model"`
	SummaryModel      string `yaml:"summary_model"`
	FeedbackThreshold int    `yaml:"feedback_threshold"`
	FeedbackInterval  string `yaml:"feedback_interval"`
	FeedbackMinChars  int    `yaml:"feedback_min_chars"`
	SummaryMaxChars   int    `yaml:"summary_max_chars"`

	StartupTimeout   string `yaml:"startup_timeout"`
	ReconnectTimeout string `yaml:"reconnect_timeout"`
	ShutdownTimeout  string `yaml:"shutdown_timeout"`

	// Secrets come from env vars only, never the YAML file.
	DeepgramAPIKey  string `yaml:"-"`
	OpenAIAPIKey    string `yaml:"-"`
	GeminiAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
}

func defaults() Config {
	return Config{
		ListenAddr:        ":8080",
		YTDLPPath:         "yt-dlp",
		FFmpegPath:        "ffmpeg",
		Language:          "ko",
		ChunkDuration:     "3s",
		ChunkOverlap:      0.2,
		FeedbackModel:     "gemini/gemini-2.5-flash-lite",
		SummaryModel:      "gemini/gemini-2.5-flash-lite",
		FeedbackThreshold: 400,
		FeedbackInterval:  "25s",
		FeedbackMinChars:  50,
		SummaryMaxChars:   2000,
		StartupTimeout:    "30s",
		ReconnectTimeout:  "10s",
		ShutdownTimeout:   "15s",
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the result.
// It returns the config, any validation warnings, and an error if the file
// exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// ParsedChunkDuration returns ChunkDuration as a time.Duration,
// falling back to 3s if the value is invalid.
func (c *Config) ParsedChunkDuration() time.Duration {
	return parseDurationOr(c.ChunkDuration, 3*time.Second)
}

// ParsedFeedbackInterval returns the maximum idle interval between
// feedback triggers, falling back to 25s.
func (c *Config) ParsedFeedbackInterval() time.Duration {
	return parseDurationOr(c.FeedbackInterval, 25*time.Second)
}

// ParsedStartupTimeout bounds how long audio acquisition may take to
// produce its first chunk, falling back to 30s.
func (c *Config) ParsedStartupTimeout() time.Duration {
	return parseDurationOr(c.StartupTimeout, 30*time.Second)
}

// ParsedReconnectTimeout bounds the transcription bridge's single
// reconnection attempt, falling back to 10s.
func (c *Config) ParsedReconnectTimeout() time.Duration {
	return parseDurationOr(c.ReconnectTimeout, 10*time.Second)
}

// ParsedShutdownTimeout bounds session teardown including the summary
// request, falling back to 15s.
func (c *Config) ParsedShutdownTimeout() time.Duration {
	return parseDurationOr(c.ShutdownTimeout, 15*time.Second)
}

func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(EnvPrefix + "YTDLP_PATH"); v != "" {
		cfg.YTDLPPath = v
	}
	if v := os.Getenv(EnvPrefix + "FFMPEG_PATH"); v != "" {
		cfg.FFmpegPath = v
	}
	if v := os.Getenv(EnvPrefix + "LANGUAGE"); v != "" {
		cfg.Language = v
	}
	if v := os.Getenv(EnvPrefix + "CHUNK_DURATION"); v != "" {
		cfg.ChunkDuration = v
	}
	if v := os.Getenv(EnvPrefix + "CHUNK_OVERLAP"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			cfg.ChunkOverlap = f
		}
	}
	if v := os.Getenv(EnvPrefix + "FEEDBACK_MODEL"); v != "" {
		cfg.FeedbackModel = v
	}
	if v := os.Getenv(EnvPrefix + "SUMMARY_MODEL"); v != "" {
		cfg.SummaryModel = v
	}
	if v := os.Getenv(EnvPrefix + "FEEDBACK_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			cfg.FeedbackThreshold = n
		}
	}
	if v := os.Getenv(EnvPrefix + "FEEDBACK_INTERVAL"); v != "" {
		cfg.FeedbackInterval = v
	}
	if v := os.Getenv(EnvPrefix + "FEEDBACK_MIN_CHARS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= 0 {
			cfg.FeedbackMinChars = n
		}
	}
	if v := os.Getenv(EnvPrefix + "SUMMARY_MAX_CHARS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			cfg.SummaryMaxChars = n
		}
	}
	if v := os.Getenv(EnvPrefix + "STARTUP_TIMEOUT"); v != "" {
		cfg.StartupTimeout = v
	}
	if v := os.Getenv(EnvPrefix + "RECONNECT_TIMEOUT"); v != "" {
		cfg.ReconnectTimeout = v
	}
	if v := os.Getenv(EnvPrefix + "SHUTDOWN_TIMEOUT"); v != "" {
		cfg.ShutdownTimeout = v
	}
}

func loadSecrets(cfg *Config) {
	cfg.DeepgramAPIKey = os.Getenv(EnvPrefix + "DEEPGRAM_API_KEY")
	cfg.OpenAIAPIKey = os.Getenv(EnvPrefix + "OPENAI_API_KEY")
	cfg.GeminiAPIKey = os.Getenv(EnvPrefix + "GEMINI_API_KEY")
	cfg.AnthropicAPIKey = os.Getenv(EnvPrefix + "ANTHROPIC_API_KEY")
}

func validate(cfg *Config) []string {
	var warnings []string

	if cfg.DeepgramAPIKey == "" {
		warnings = append(warnings, "Deepgram API key not configured; live transcription is disabled. Set "+EnvPrefix+"DEEPGRAM_API_KEY.")
	}
	if cfg.GeminiAPIKey == "" && cfg.OpenAIAPIKey == "" && cfg.AnthropicAPIKey == "" {
		warnings = append(warnings, "No LLM API key configured; feedback and summaries are disabled. Set "+EnvPrefix+"GEMINI_API_KEY, "+EnvPrefix+"OPENAI_API_KEY, or "+EnvPrefix+"ANTHROPIC_API_KEY.")
	}
	for _, field := range []struct{ name, value string }{
		{"chunk_duration", cfg.ChunkDuration},
		{"feedback_interval", cfg.FeedbackInterval},
		{"startup_timeout", cfg.StartupTimeout},
		{"reconnect_timeout", cfg.ReconnectTimeout},
		{"shutdown_timeout", cfg.ShutdownTimeout},
	} {
		if _, err := time.ParseDuration(field.value); err != nil {
			warnings = append(warnings, fmt.Sprintf("Invalid %s %q, using default.", field.name, field.value))
		}
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap > 0.5 {
		warnings = append(warnings, fmt.Sprintf("chunk_overlap %.2f outside [0, 0.5], using default 0.2.", cfg.ChunkOverlap))
		cfg.ChunkOverlap = 0.2
	}

	return warnings
}
