package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver"` // mysql | postgres
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
	} `yaml:"database"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	Classifier struct {
		APIKey string `yaml:"apiKey"`
		Model  string `yaml:"model"`
	} `yaml:"classifier"`

	Crawler struct {
		TimeoutSeconds int      `yaml:"timeoutSeconds"`
		Keywords       []string `yaml:"keywords"` // seed list, merged with watchlist keyword entries
	} `yaml:"crawler"`

	Auth struct {
		// APIKeys maps actor name ke key. Kosong = auth disabled.
		APIKeys map[string]string `yaml:"apiKeys"`
	} `yaml:"auth"`

	RateLimit struct {
		Capacity   int `yaml:"capacity"`
		RefillRate int `yaml:"refillRate"`
	} `yaml:"rateLimit"`

	Ingest struct {
		BatchConcurrency int `yaml:"batchConcurrency"`
		GlobalLimit      int `yaml:"globalLimit"`
		MaxAttempts      int `yaml:"maxAttempts"`
		BackoffMS        int `yaml:"backoffMs"`
	} `yaml:"ingest"`
}

// Load baca file config.yaml
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// Helper untuk build DSN Postgres
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
	)
}

// CrawlTimeout with default
func (c *Config) CrawlTimeout() time.Duration {
	if c.Crawler.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.Crawler.TimeoutSeconds) * time.Second
}

// IngestBackoff with default
func (c *Config) IngestBackoff() time.Duration {
	if c.Ingest.BackoffMS <= 0 {
		return 200 * time.Millisecond
	}
	return time.Duration(c.Ingest.BackoffMS) * time.Millisecond
}
