package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ModelConfig carries per-model overrides from the catalog. Models not
// listed here are rejected at workflow save time.
type ModelConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	MaxTokens      int `mapstructure:"max_tokens"`
}

// Config holds the configuration for the application.
type Config struct {
	DB struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`
	LLM struct {
		URL            string                 `mapstructure:"url"`
		APIKey         string                 `mapstructure:"api_key"`
		TimeoutSeconds int                    `mapstructure:"timeout_seconds"`
		Models         map[string]ModelConfig `mapstructure:"models"`
	} `mapstructure:"llm"`
	Engine struct {
		RetryBackoffMs int `mapstructure:"retry_backoff_ms"`
	} `mapstructure:"engine"`
	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`
}

// LoadConfig loads the configuration from a file and the environment.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("db.sslmode", "disable")
	viper.SetDefault("llm.timeout_seconds", 60)
	viper.SetDefault("engine.retry_backoff_ms", 800)
	viper.SetDefault("server.addr", ":8080")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.LLM.URL = strings.TrimRight(strings.TrimSpace(config.LLM.URL), "/")

	return &config, nil
}

// AllowedModels returns the model allowlist derived from the catalog.
func (c *Config) AllowedModels() map[string]bool {
	allowed := make(map[string]bool, len(c.LLM.Models))
	for name := range c.LLM.Models {
		allowed[name] = true
	}
	return allowed
}

// ModelTimeout picks the invocation timeout for a model: the larger of
// the global default and the per-model override, so slow models can
// only extend the budget.
func (c *Config) ModelTimeout(model string) time.Duration {
	base := time.Duration(c.LLM.TimeoutSeconds) * time.Second
	if mc, ok := c.LLM.Models[model]; ok && mc.TimeoutSeconds > 0 {
		if per := time.Duration(mc.TimeoutSeconds) * time.Second; per > base {
			return per
		}
	}
	return base
}

// ModelMaxTokens returns the token cap for a model, 0 meaning unset.
func (c *Config) ModelMaxTokens(model string) int {
	if mc, ok := c.LLM.Models[model]; ok {
		return mc.MaxTokens
	}
	return 0
}

// DBConnString builds the pgx connection string from the db section.
func (c *Config) DBConnString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Name, c.DB.SSLMode,
	)
}

// RetryBackoff returns the base sleep applied before retrying an
// invocation error.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.Engine.RetryBackoffMs) * time.Millisecond
}
