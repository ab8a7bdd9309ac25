package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Directory DirectoryConfig
	Redis     RedisConfig
	LLM       LLMConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int
	AllowedOrigins string
}

type DatabaseConfig struct {
	URL string
}

type DirectoryConfig struct {
	BaseURL       string
	APIKey        string
	Retries       int
	BackoffFactor float64
	TimeoutSec    int
	CacheTTLSec   int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Enabled  bool
}

type LLMConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	TimeoutSec  int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/medterm")

	viper.SetEnvPrefix("MEDTERM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Heroku-style env vars arrive without the MEDTERM prefix.
	viper.BindEnv("database.url", "DATABASE_URL")
	viper.BindEnv("llm.apiKey", "OPENAI_API_KEY")
	viper.BindEnv("directory.apiKey", "ATHENA_API_KEY")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.Database.URL = NormalizeDatabaseURL(config.Database.URL)

	return &config, nil
}

// NormalizeDatabaseURL rewrites the short "postgres://" scheme that hosting
// providers hand out to the long form the driver expects.
func NormalizeDatabaseURL(url string) string {
	if strings.HasPrefix(url, "postgres://") {
		return "postgresql://" + strings.TrimPrefix(url, "postgres://")
	}
	return url
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8000)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 1048576)
	viper.SetDefault("server.allowedOrigins", "http://localhost:5173")

	viper.SetDefault("directory.baseUrl", "https://athena.ohdsi.org/api/v1")
	viper.SetDefault("directory.retries", 3)
	viper.SetDefault("directory.backoffFactor", 0.3)
	viper.SetDefault("directory.timeoutSec", 10)
	viper.SetDefault("directory.cacheTtlSec", 3600)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.enabled", false)

	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.maxTokens", 2048)
	viper.SetDefault("llm.timeoutSec", 30)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
