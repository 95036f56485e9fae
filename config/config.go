package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"noise-lab/utils"
)

// Config is the complete service configuration. Values come from an optional
// YAML file and are then overridden by environment variables.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	Engine    EngineConfig    `yaml:"engine"`
	Journal   JournalConfig   `yaml:"journal"`
	Logging   LoggingConfig   `yaml:"logging"`
	Assistant AssistantConfig `yaml:"assistant"`
}

type ServerConfig struct {
	Protocol string `yaml:"protocol"`
	Port     string `yaml:"port"`
	CertFile string `yaml:"cert_file"`
	CertKey  string `yaml:"cert_key"`
}

type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`
	FrameSize  int `yaml:"frame_size"` // samples per frame, 0 accepts any length
}

// EngineConfig holds the clustering parameters.
type EngineConfig struct {
	MatchThreshold    float64 `yaml:"match_threshold"`
	MinEnergy         float64 `yaml:"min_energy"`
	DecayRate         float64 `yaml:"decay_rate"`
	PendingTTLSeconds float64 `yaml:"pending_ttl_seconds"`
	LearningEnabled   bool    `yaml:"learning_enabled"`
}

// JournalConfig controls the lifecycle event journal. An empty path disables it.
type JournalConfig struct {
	Path   string `yaml:"path"`
	Buffer int    `yaml:"buffer"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type AssistantConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Protocol: "http",
			Port:     "8000",
		},
		Audio: AudioConfig{
			SampleRate: 44100,
			FrameSize:  4096,
		},
		Engine: EngineConfig{
			MatchThreshold:    0.35,
			MinEnergy:         0.01,
			DecayRate:         0.005,
			PendingTTLSeconds: 30,
			LearningEnabled:   true,
		},
		Journal: JournalConfig{
			Path:   "data/journal.db",
			Buffer: 256,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Assistant: AssistantConfig{
			Model: "gemini-2.5-flash",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (skipped
// when path is empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

func (c *Config) applyEnv() {
	c.Server.Protocol = utils.GetEnv("PROTO", c.Server.Protocol)
	c.Server.Port = utils.GetEnv("PORT", c.Server.Port)
	c.Server.CertFile = utils.GetEnv("CERT_FILE", c.Server.CertFile)
	c.Server.CertKey = utils.GetEnv("CERT_KEY", c.Server.CertKey)

	c.Audio.SampleRate = utils.GetEnvInt("SAMPLE_RATE", c.Audio.SampleRate)
	c.Audio.FrameSize = utils.GetEnvInt("FRAME_SIZE", c.Audio.FrameSize)

	c.Engine.MatchThreshold = utils.GetEnvFloat("MATCH_THRESHOLD", c.Engine.MatchThreshold)
	c.Engine.MinEnergy = utils.GetEnvFloat("MIN_ENERGY", c.Engine.MinEnergy)
	c.Engine.DecayRate = utils.GetEnvFloat("DECAY_RATE", c.Engine.DecayRate)
	c.Engine.PendingTTLSeconds = utils.GetEnvFloat("PENDING_TTL_SECONDS", c.Engine.PendingTTLSeconds)
	c.Engine.LearningEnabled = utils.GetEnvBool("LEARNING_ENABLED", c.Engine.LearningEnabled)

	if path, ok := os.LookupEnv("JOURNAL_PATH"); ok {
		c.Journal.Path = path
	}
	c.Journal.Buffer = utils.GetEnvInt("JOURNAL_BUFFER", c.Journal.Buffer)

	c.Logging.Level = utils.GetEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = utils.GetEnv("LOG_FORMAT", c.Logging.Format)

	c.Assistant.APIKey = utils.GetEnv("GEMINI_API_KEY", c.Assistant.APIKey)
	c.Assistant.Model = utils.GetEnv("GEMINI_MODEL", c.Assistant.Model)
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}
	if err := c.Journal.Validate(); err != nil {
		return fmt.Errorf("journal config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

func (s *ServerConfig) Validate() error {
	if s.Protocol != "http" && s.Protocol != "https" {
		return fmt.Errorf("protocol must be 'http' or 'https', got '%s'", s.Protocol)
	}

	port, err := strconv.Atoi(s.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got '%s'", s.Port)
	}

	if s.Protocol == "https" && (s.CertFile == "" || s.CertKey == "") {
		return fmt.Errorf("cert_file and cert_key are required for https")
	}
	return nil
}

func (a *AudioConfig) Validate() error {
	if a.SampleRate < 1000 {
		return fmt.Errorf("sample_rate must be at least 1000 Hz, got %d", a.SampleRate)
	}
	if a.FrameSize < 0 {
		return fmt.Errorf("frame_size cannot be negative, got %d", a.FrameSize)
	}
	return nil
}

func (e *EngineConfig) Validate() error {
	if e.MatchThreshold <= 0 {
		return fmt.Errorf("match_threshold must be positive, got %f", e.MatchThreshold)
	}
	// the engine reads a zero MinEnergy as unset
	if e.MinEnergy <= 0 {
		return fmt.Errorf("min_energy must be positive, got %f", e.MinEnergy)
	}
	if e.DecayRate <= 0 {
		return fmt.Errorf("decay_rate must be positive, got %f", e.DecayRate)
	}
	if e.PendingTTLSeconds <= 0 {
		return fmt.Errorf("pending_ttl_seconds must be positive, got %f", e.PendingTTLSeconds)
	}
	return nil
}

func (j *JournalConfig) Validate() error {
	if j.Path != "" && j.Buffer < 1 {
		return fmt.Errorf("buffer must be at least 1 when the journal is enabled, got %d", j.Buffer)
	}
	return nil
}

func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}
	return nil
}

// PendingTTL returns the pending expiry as a time.Duration.
func (e *EngineConfig) PendingTTL() time.Duration {
	return time.Duration(e.PendingTTLSeconds * float64(time.Second))
}
