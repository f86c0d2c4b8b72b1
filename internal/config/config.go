package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Assistant AssistantConfig `mapstructure:"assistant"`
	Search    SearchConfig    `mapstructure:"search"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// AssistantConfig configures the remote assistant-run service and the
// local policies around it.
type AssistantConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	APIKey      string `mapstructure:"api_key"`
	AssistantID string `mapstructure:"assistant_id"`
	Timeout     int    `mapstructure:"timeout"` // seconds, per request

	// Run completion polling: ceiling exists so an HTTP request handler
	// never hangs past its own upstream timeout.
	PollMaxAttempts int `mapstructure:"poll_max_attempts"`
	PollIntervalMs  int `mapstructure:"poll_interval_ms"`

	// Tool-output submission retry policy (linear backoff, attempt*delay).
	SubmitMaxRetries int `mapstructure:"submit_max_retries"`
	SubmitBackoffMs  int `mapstructure:"submit_backoff_ms"`
}

// SearchConfig configures the SerpAPI search provider.
type SearchConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BaseURL  string `mapstructure:"base_url"`
	APIKey   string `mapstructure:"api_key"`
	Timeout  int    `mapstructure:"timeout"`
	Location string `mapstructure:"location"` // geolocation bias for all engines
}

type StorageConfig struct {
	Path string `mapstructure:"path"` // task database path
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(cfgFile string) *Config {
	// Load .env file if exists (ignore error if not found)
	godotenv.Load()
	godotenv.Load(".env.local")

	v := viper.New()

	setDefaults(v)

	// Replace . with _ for nested config keys
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("LIFEY")
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is ok, use defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic("Error reading config file: " + err.Error())
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic("Error unmarshaling config: " + err.Error())
	}

	return &cfg
}

// Validate checks the configuration the process cannot run without.
// Missing credentials are fatal at startup, never surfaced per request.
func (c *Config) Validate() error {
	var errs []error

	if c.Assistant.APIKey == "" {
		errs = append(errs, errors.New("assistant.api_key is required (LIFEY_ASSISTANT_API_KEY)"))
	}
	if c.Assistant.AssistantID == "" {
		errs = append(errs, errors.New("assistant.assistant_id is required (LIFEY_ASSISTANT_ASSISTANT_ID)"))
	}
	if c.Search.Enabled && c.Search.APIKey == "" {
		errs = append(errs, errors.New("search.api_key is required when search is enabled (LIFEY_SEARCH_API_KEY)"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 300)

	// Assistant defaults
	v.SetDefault("assistant.base_url", "https://api.openai.com/v1")
	v.SetDefault("assistant.timeout", 60)
	v.SetDefault("assistant.poll_max_attempts", 30)
	v.SetDefault("assistant.poll_interval_ms", 1000)
	v.SetDefault("assistant.submit_max_retries", 3)
	v.SetDefault("assistant.submit_backoff_ms", 2000)

	// Search defaults
	v.SetDefault("search.enabled", true)
	v.SetDefault("search.base_url", "https://serpapi.com")
	v.SetDefault("search.timeout", 30)
	v.SetDefault("search.location", "Auckland, New Zealand")

	// Storage defaults
	v.SetDefault("storage.path", "./data/tasks.db")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}
