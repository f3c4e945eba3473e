package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	SQLite     SQLiteConfig
	SpamDetect LimiterConfig
	ReadLimit  LimiterConfig
	Rating     RatingConfig
	Redis      RedisConfig
	Auth       AuthConfig
	CORS       CORSConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
	// TrustProxy makes the source key come from X-Forwarded-For.
	TrustProxy bool
}

type SQLiteConfig struct {
	Path string
}

type LimiterConfig struct {
	MaxRequestsInWindow int
	WindowSeconds       int
}

func (l LimiterConfig) Window() time.Duration {
	return time.Duration(l.WindowSeconds) * time.Second
}

type RatingConfig struct {
	DuplicateWindowHours int64
	MaxFieldLength       int
}

type RedisConfig struct {
	Enabled    bool
	Host       string
	Port       int
	Password   string
	DB         int
	TTLSeconds int
}

func (r RedisConfig) TTL() time.Duration {
	return time.Duration(r.TTLSeconds) * time.Second
}

type AuthConfig struct {
	// Admin is "name:password"; empty skips the bootstrap.
	Admin string
}

type CORSConfig struct {
	AllowOrigins string
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

// Load reads config.yaml from the usual places and lets HUMANMADE_* variables
// override any key (server.port -> HUMANMADE_SERVER_PORT).
func Load() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/humanmade")

	v.SetEnvPrefix("HUMANMADE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) validate() error {
	if c.SQLite.Path == "" {
		return fmt.Errorf("sqlite.path must be set")
	}
	for name, l := range map[string]LimiterConfig{"spamDetect": c.SpamDetect, "readLimit": c.ReadLimit} {
		if l.MaxRequestsInWindow <= 0 || l.WindowSeconds <= 0 {
			return fmt.Errorf("%s needs a positive maxRequestsInWindow and windowSeconds", name)
		}
	}
	if c.Rating.DuplicateWindowHours <= 0 {
		return fmt.Errorf("rating.duplicateWindowHours must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)
	v.SetDefault("server.bodyLimit", 65536)
	v.SetDefault("server.trustProxy", false)

	v.SetDefault("sqlite.path", "./data/humanmade.db")

	v.SetDefault("spamDetect.maxRequestsInWindow", 10)
	v.SetDefault("spamDetect.windowSeconds", 60)

	v.SetDefault("readLimit.maxRequestsInWindow", 120)
	v.SetDefault("readLimit.windowSeconds", 60)

	v.SetDefault("rating.duplicateWindowHours", 24)
	v.SetDefault("rating.maxFieldLength", 30)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttlSeconds", 300)

	v.SetDefault("auth.admin", "admin:admin")

	v.SetDefault("cors.allowOrigins", "*")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
