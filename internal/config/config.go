package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/prooflab/cardproof-backend/internal/platform/envutil"
)

const (
	DefaultPort          = 8000
	DefaultWorkers       = 3
	DefaultQueueCapacity = 16
	DefaultMaxUpload     = 100 << 20
	DefaultJobTTL        = 24 * time.Hour
	DefaultJobTimeout    = 180 * time.Second
	DefaultMinFreeDisk   = 512 << 20
)

type Config struct {
	Port             int
	PublicURL        string
	Workers          int
	QueueCapacity    int
	MaxUploadBytes   int64
	JobTTL           time.Duration
	JobTimeout       time.Duration
	APIKey           string
	HMACSecret       string
	RasterizerCmd    string
	ResultDir        string
	IntakeDir        string
	MinFreeDiskBytes int64
	LogMode          string
}

// fileConfig is the optional YAML overlay; set fields win over env.
type fileConfig struct {
	Port          *int    `yaml:"port"`
	PublicURL     *string `yaml:"publicUrl"`
	Workers       *int    `yaml:"workers"`
	QueueCapacity *int    `yaml:"queueCapacity"`
	RasterizerCmd *string `yaml:"rasterizerCmd"`
	ResultDir     *string `yaml:"resultDir"`
	IntakeDir     *string `yaml:"intakeDir"`
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:             envutil.Int("PORT", DefaultPort),
		PublicURL:        envutil.String("PUBLIC_URL", ""),
		Workers:          envutil.Int("WORKERS", DefaultWorkers),
		QueueCapacity:    envutil.Int("QUEUE_CAPACITY", DefaultQueueCapacity),
		MaxUploadBytes:   envutil.Int64("MAX_UPLOAD_BYTES", DefaultMaxUpload),
		JobTTL:           envutil.Seconds("JOB_TTL_SECONDS", DefaultJobTTL),
		JobTimeout:       envutil.Seconds("JOB_TIMEOUT_SECONDS", DefaultJobTimeout),
		APIKey:           envutil.String("API_KEY", ""),
		HMACSecret:       envutil.String("HMAC_SECRET", ""),
		RasterizerCmd:    envutil.String("RASTERIZER_CMD", ""),
		ResultDir:        envutil.String("RESULT_DIR", "./data/results"),
		IntakeDir:        envutil.String("INTAKE_DIR", "./data/intake"),
		MinFreeDiskBytes: envutil.Int64("MIN_FREE_DISK_BYTES", DefaultMinFreeDisk),
		LogMode:          envutil.String("LOG_MODE", "development"),
	}

	if path := envutil.String("CONFIG_FILE", ""); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueCapacity < 1 {
		cfg.QueueCapacity = 1
	}
	if cfg.PublicURL == "" {
		cfg.PublicURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return err
	}
	if fc.Port != nil {
		c.Port = *fc.Port
	}
	if fc.PublicURL != nil {
		c.PublicURL = *fc.PublicURL
	}
	if fc.Workers != nil {
		c.Workers = *fc.Workers
	}
	if fc.QueueCapacity != nil {
		c.QueueCapacity = *fc.QueueCapacity
	}
	if fc.RasterizerCmd != nil {
		c.RasterizerCmd = *fc.RasterizerCmd
	}
	if fc.ResultDir != nil {
		c.ResultDir = *fc.ResultDir
	}
	if fc.IntakeDir != nil {
		c.IntakeDir = *fc.IntakeDir
	}
	return nil
}
