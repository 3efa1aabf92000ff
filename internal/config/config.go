package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
	Logger   Logger   `mapstructure:"logger"`
	Import   Import   `mapstructure:"import"`
}

// Server holds the configuration for the web server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Import holds the configuration for the CSV import pipeline.
type Import struct {
	MaxUploadBytes int64   `mapstructure:"max_upload_bytes"`
	BatchSize      int     `mapstructure:"batch_size"`
	Timezone       string  `mapstructure:"timezone"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")    // or yaml, json

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("import.max_upload_bytes", 5*1024*1024) // 5 MiB upload ceiling
	viper.SetDefault("import.batch_size", 1000)
	viper.SetDefault("import.timezone", "Local")
	viper.SetDefault("import.rate_limit", 1) // import requests per second
	viper.SetDefault("import.rate_limit_burst", 2)

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
