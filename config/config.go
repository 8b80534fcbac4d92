// Package config handles loading and validating the pipeline
// configuration from a YAML file.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/crisiswatch/crisiswatch/verify"
)

// RedditConfig configures the Reddit listing poller.
type RedditConfig struct {
	BaseURL    string        `yaml:"base_url"`   // default https://www.reddit.com
	Subreddits []string      `yaml:"subreddits"` // e.g. ["news", "worldnews"]
	Limit      int           `yaml:"limit"`      // listing page size, default 50
	UserAgent  string        `yaml:"user_agent"`
	MinDelay   time.Duration `yaml:"min_delay"`   // fixed delay between listing calls
	MaxRetries int           `yaml:"max_retries"` // retries on 429/5xx
	Backoff    time.Duration `yaml:"backoff"`     // initial retry backoff
	Timeout    time.Duration `yaml:"timeout"`     // per-request timeout
}

// SQSConfig configures the SQS post consumer.
type SQSConfig struct {
	QueueName   string `yaml:"queue_name"`
	MaxMessages int32  `yaml:"max_messages"` // per ReceiveMessage, max 10
	WaitSeconds int32  `yaml:"wait_seconds"` // long-poll wait
}

// KafkaConfig configures the Kafka post consumer.
type KafkaConfig struct {
	Brokers     []string      `yaml:"brokers"`
	Topic       string        `yaml:"topic"`
	GroupID     string        `yaml:"group_id"`
	MaxBatch    int           `yaml:"max_batch"`    // messages per cycle, default 100
	ReadTimeout time.Duration `yaml:"read_timeout"` // per-cycle read budget
}

// SourceConfig selects and configures one post source.
type SourceConfig struct {
	Type   string       `yaml:"type"` // "reddit" | "sqs" | "kafka"
	Reddit RedditConfig `yaml:"reddit"`
	SQS    SQSConfig    `yaml:"sqs"`
	Kafka  KafkaConfig  `yaml:"kafka"`
}

// ClassifierConfig selects the classification backend.
type ClassifierConfig struct {
	Provider       string   `yaml:"provider"` // "gemini" | "keyword"
	Model          string   `yaml:"model"`
	APIKeyEnv      string   `yaml:"api_key_env"` // env var holding the model API key
	ExtraLocations []string `yaml:"extra_locations"`
}

// DedupConfig bounds the duplicate-suppression store.
type DedupConfig struct {
	TTL     time.Duration `yaml:"ttl"`
	MaxKeys int           `yaml:"max_keys"`
}

// WindowConfig tunes the spike detector.
type WindowConfig struct {
	Duration  time.Duration `yaml:"duration"`   // sliding window length
	MinEvents int           `yaml:"min_events"` // events to escalate
	Cooldown  time.Duration `yaml:"cooldown"`   // per-bucket re-alert suppression
}

// AlertConfig configures alert dispatch.
type AlertConfig struct {
	SNSTopicARN string `yaml:"sns_topic_arn"`
	DryRun      bool   `yaml:"dry_run"` // log alerts instead of publishing
}

// StorageConfig configures persistence and replay.
type StorageConfig struct {
	TableName     string `yaml:"table_name"`     // DynamoDB event table
	BatchSize     int    `yaml:"batch_size"`     // DynamoDB write batch size (≤25)
	ArchiveS3URI  string `yaml:"archive_s3_uri"` // s3://bucket/prefix for raw posts
	CheckpointURI string `yaml:"checkpoint_uri"` // s3:// or file:// replay cursor

	// Internal fields
	archiveBucket string
}

// VerificationConfig provides the official-source roster.
type VerificationConfig struct {
	RosterS3URI string                  `yaml:"roster_s3_uri"` // optional S3 roster
	Sources     []verify.OfficialSource `yaml:"sources"`       // static roster entries
}

// MetricsConfig enables the Prometheus endpoint.
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"` // e.g. ":9091"; empty disables
}

// PreflightConfig enables the IAM permission simulation at startup.
type PreflightConfig struct {
	Enable       bool   `yaml:"enable"`
	PrincipalARN string `yaml:"principal_arn"`
}

// Config holds all pipeline configuration.
type Config struct {
	Region       string             `yaml:"region"`
	PollInterval time.Duration      `yaml:"poll_interval"`
	MaxWorkers   int                `yaml:"max_workers"`
	ReportS3URI  string             `yaml:"report_s3_uri"` // optional final report upload
	Sources      []SourceConfig     `yaml:"sources"`
	Classifier   ClassifierConfig   `yaml:"classifier"`
	Dedup        DedupConfig        `yaml:"dedup"`
	Window       WindowConfig       `yaml:"window"`
	Alerting     AlertConfig        `yaml:"alerting"`
	Storage      StorageConfig      `yaml:"storage"`
	Verification VerificationConfig `yaml:"verification"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Preflight    PreflightConfig    `yaml:"preflight"`
}

// Load reads and validates a config file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetArchiveBucketName returns the bucket parsed from ArchiveS3URI.
func (s *StorageConfig) GetArchiveBucketName() string {
	return s.archiveBucket
}

// Validate ensures all required fields are present and have valid values,
// and fills defaults for the optional ones.
func (c *Config) Validate() error {
	if c.Region == "" {
		return fmt.Errorf("region is required")
	}

	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	for i, s := range c.Sources {
		switch s.Type {
		case "reddit":
			if len(s.Reddit.Subreddits) == 0 {
				return fmt.Errorf("source %d: reddit source needs at least one subreddit", i)
			}
		case "sqs":
			if s.SQS.QueueName == "" {
				return fmt.Errorf("source %d: sqs source needs a queue name", i)
			}
			if s.SQS.MaxMessages < 0 || s.SQS.MaxMessages > 10 {
				return fmt.Errorf("source %d: sqs max messages must be between 1 and 10", i)
			}
		case "kafka":
			if len(s.Kafka.Brokers) == 0 || s.Kafka.Topic == "" {
				return fmt.Errorf("source %d: kafka source needs brokers and a topic", i)
			}
		default:
			return fmt.Errorf("source %d: unknown source type %q", i, s.Type)
		}
	}

	switch c.Classifier.Provider {
	case "", "keyword":
		// heuristic only
	case "gemini":
		if c.Classifier.APIKeyEnv == "" {
			return fmt.Errorf("classifier api_key_env is required for the gemini provider")
		}
	default:
		return fmt.Errorf("unknown classifier provider %q", c.Classifier.Provider)
	}

	if c.Storage.TableName == "" {
		return fmt.Errorf("storage table name is required")
	}
	if c.Storage.BatchSize < 0 || c.Storage.BatchSize > 25 {
		return fmt.Errorf("storage batch size must be between 1 and 25")
	}
	if c.Storage.ArchiveS3URI != "" {
		if !strings.HasPrefix(c.Storage.ArchiveS3URI, "s3://") {
			return fmt.Errorf("archive S3 URI must start with s3://")
		}
		u, err := url.Parse(c.Storage.ArchiveS3URI)
		if err != nil {
			return fmt.Errorf("invalid archive S3 URI: %w", err)
		}
		c.Storage.archiveBucket = u.Host
	}
	if c.Storage.CheckpointURI != "" &&
		!strings.HasPrefix(c.Storage.CheckpointURI, "s3://") &&
		!strings.HasPrefix(c.Storage.CheckpointURI, "file://") {
		return fmt.Errorf("checkpoint URI must use the s3 or file scheme")
	}

	if !c.Alerting.DryRun && c.Alerting.SNSTopicARN == "" {
		return fmt.Errorf("sns topic ARN is required unless alerting runs dry")
	}

	if c.ReportS3URI != "" && !strings.HasPrefix(c.ReportS3URI, "s3://") {
		return fmt.Errorf("report S3 URI must start with s3://")
	}

	if c.Preflight.Enable && c.Preflight.PrincipalARN == "" {
		return fmt.Errorf("preflight principal ARN is required when preflight is enabled")
	}

	// Defaults for optional knobs.
	if c.PollInterval <= 0 {
		c.PollInterval = time.Minute
	}
	if c.MaxWorkers < 1 {
		c.MaxWorkers = 4
	}
	if c.Window.Duration <= 0 {
		c.Window.Duration = time.Hour
	}
	if c.Window.MinEvents < 1 {
		c.Window.MinEvents = 3
	}
	if c.Window.Cooldown <= 0 {
		c.Window.Cooldown = c.Window.Duration
	}
	if c.Dedup.TTL <= 0 {
		c.Dedup.TTL = 24 * time.Hour
	}
	if c.Dedup.MaxKeys <= 0 {
		c.Dedup.MaxKeys = 10000
	}
	if c.Storage.BatchSize == 0 {
		c.Storage.BatchSize = 25
	}

	return nil
}
