package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultRedisAddr         = "localhost:6379"
	DefaultVibeRateLimit     = 10
	DefaultVibeRateWindow    = time.Minute
	DefaultRetentionInterval = time.Hour
	DefaultPublicURL         = "http://localhost:3000"
)

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

type Config struct {
	DatabaseDSN       string
	ServerAddr        string
	SigningKey        []byte
	AllowedOrigins    []string
	RedisAddr         string
	RedisPassword     string
	VibeRateLimit     int
	VibeRateWindow    time.Duration
	RetentionInterval time.Duration
	PublicURL         string
	SMTP              SMTPConfig
}

// FileConfig is the optional YAML configuration file. Every field is
// optional; values set on the command line take precedence.
type FileConfig struct {
	Addr              string   `yaml:"addr"`
	DSN               string   `yaml:"dsn"`
	SigningKey        string   `yaml:"signingKey"`
	AllowedOrigins    []string `yaml:"allowedOrigins"`
	RedisAddr         string   `yaml:"redisAddr"`
	RedisPassword     string   `yaml:"redisPassword"`
	VibeRateLimit     int      `yaml:"vibeRateLimit"`
	VibeRateWindow    string   `yaml:"vibeRateWindow"`
	RetentionInterval string   `yaml:"retentionInterval"`
	PublicURL         string   `yaml:"publicURL"`
	SMTPHost          string   `yaml:"smtpHost"`
	SMTPPort          string   `yaml:"smtpPort"`
	SMTPUsername      string   `yaml:"smtpUsername"`
	SMTPPassword      string   `yaml:"smtpPassword"`
	SMTPFrom          string   `yaml:"smtpFrom"`
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(base64Secret)
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("signing secret is empty")
	}

	return key, nil
}

func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		DatabaseDSN:       databaseDSN,
		ServerAddr:        serverAddr,
		SigningKey:        signingKey,
		AllowedOrigins:    allowedOrigins,
		RedisAddr:         DefaultRedisAddr,
		VibeRateLimit:     DefaultVibeRateLimit,
		VibeRateWindow:    DefaultVibeRateWindow,
		RetentionInterval: DefaultRetentionInterval,
		PublicURL:         DefaultPublicURL,
	}, nil
}

// Validate checks the settings that NewConfig does not cover.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RedisAddr) == "" {
		return fmt.Errorf("redis address cannot be empty")
	}
	if c.VibeRateLimit <= 0 || c.VibeRateWindow <= 0 {
		return fmt.Errorf("vibe rate limit requires positive limit and window")
	}
	if c.RetentionInterval <= 0 {
		return fmt.Errorf("retention interval must be positive")
	}
	if c.PublicURL == "" {
		return fmt.Errorf("public URL cannot be empty")
	}

	return nil
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (FileConfig, error) {
	var fc FileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse config: %w", err)
	}

	return fc, nil
}

// Durations parses the duration fields of the file, leaving zero values for
// fields that are not set.
func (fc FileConfig) Durations() (vibeWindow, retention time.Duration, err error) {
	if fc.VibeRateWindow != "" {
		vibeWindow, err = time.ParseDuration(fc.VibeRateWindow)
		if err != nil {
			return 0, 0, fmt.Errorf("parse vibeRateWindow: %w", err)
		}
	}
	if fc.RetentionInterval != "" {
		retention, err = time.ParseDuration(fc.RetentionInterval)
		if err != nil {
			return 0, 0, fmt.Errorf("parse retentionInterval: %w", err)
		}
	}

	return vibeWindow, retention, nil
}
