package internal

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"hookswitch/pkg/auth"

	"gopkg.in/yaml.v3"
)

// AppConfig represents the main application configuration.
type AppConfig struct {
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
	// Providers contains webhook and credential configuration per provider.
	Providers auth.Config `yaml:"providers"`
	// Storage configures the enablements store. An empty driver disables it.
	Storage StorageConfig `yaml:"storage"`
	// Watermill holds configuration for event publishing.
	Watermill WatermillConfig `yaml:"watermill"`
}

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Port int `yaml:"port"`
	// ListenAddr overrides Port when set, e.g. "127.0.0.1:9000".
	ListenAddr string `yaml:"listen_addr"`
	// BaseURL is the public origin webhook URLs are built from.
	BaseURL              string `yaml:"base_url"`
	ReadTimeoutMS        int64  `yaml:"read_timeout_ms"`
	WriteTimeoutMS       int64  `yaml:"write_timeout_ms"`
	IdleTimeoutMS        int64  `yaml:"idle_timeout_ms"`
	ReadHeaderMS         int64  `yaml:"read_header_timeout_ms"`
	MaxBodyBytes         int64  `yaml:"max_body_bytes"`
	MetricsEnabled       bool   `yaml:"metrics_enabled"`
	MetricsPath          string `yaml:"metrics_path"`
	DebugEvents          bool   `yaml:"debug_events"`
	StrictClassification bool   `yaml:"strict_classification"`
}

// LogConfig selects the log level (DEBUG, INFO, WARN, ERROR) and format (json, text).
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StorageConfig configures the GORM enablements store.
type StorageConfig struct {
	Driver      string `yaml:"driver"`
	DSN         string `yaml:"dsn"`
	Dialect     string `yaml:"dialect"`
	Table       string `yaml:"table"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

// Config represents the application configuration including rules.
type Config struct {
	AppConfig   `yaml:",inline"`
	Rules       []Rule `yaml:"rules"`
	RulesStrict bool   `yaml:"rules_strict"`
}

// WatermillConfig holds the configuration for Watermill, which handles messaging.
type WatermillConfig struct {
	Driver       string             `yaml:"driver"`
	Drivers      []string           `yaml:"drivers"`
	GoChannel    GoChannelConfig    `yaml:"gochannel"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	NATS         NATSConfig         `yaml:"nats"`
	AMQP         AMQPConfig         `yaml:"amqp"`
	SQL          SQLConfig          `yaml:"sql"`
	HTTP         HTTPConfig         `yaml:"http"`
	RiverQueue   RiverQueueConfig   `yaml:"riverqueue"`
	PublishRetry PublishRetryConfig `yaml:"publish_retry"`
	DLQDriver    string             `yaml:"dlq_driver"`
}

// GoChannelConfig holds configuration for the GoChannel pub/sub.
type GoChannelConfig struct {
	OutputChannelBuffer            int64 `yaml:"output_buffer"`
	Persistent                     bool  `yaml:"persistent"`
	BlockPublishUntilSubscriberAck bool  `yaml:"block_publish_until_subscriber_ack"`
}

// KafkaConfig holds configuration for the Kafka pub/sub.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
}

// NATSConfig holds configuration for the NATS pub/sub.
type NATSConfig struct {
	ClusterID string `yaml:"cluster_id"`
	ClientID  string `yaml:"client_id"`
	URL       string `yaml:"url"`
}

// AMQPConfig holds configuration for the AMQP pub/sub.
type AMQPConfig struct {
	URL  string `yaml:"url"`
	Mode string `yaml:"mode"`
}

// SQLConfig holds configuration for the SQL pub/sub.
type SQLConfig struct {
	Driver               string `yaml:"driver"`
	DSN                  string `yaml:"dsn"`
	Dialect              string `yaml:"dialect"`
	InitializeSchema     bool   `yaml:"initialize_schema"`
	AutoInitializeSchema bool   `yaml:"auto_initialize_schema"`
}

// HTTPConfig holds configuration for the HTTP publisher.
type HTTPConfig struct {
	BaseURL string `yaml:"base_url"`
	Mode    string `yaml:"mode"`
}

// RiverQueueConfig holds configuration for the RiverQueue publisher.
type RiverQueueConfig struct {
	Driver      string   `yaml:"driver"`
	DSN         string   `yaml:"dsn"`
	Table       string   `yaml:"table"`
	Queue       string   `yaml:"queue"`
	Kind        string   `yaml:"kind"`
	MaxAttempts int      `yaml:"max_attempts"`
	Priority    int      `yaml:"priority"`
	Tags        []string `yaml:"tags"`
}

// PublishRetryConfig controls per-driver publish retries.
type PublishRetryConfig struct {
	Attempts int `yaml:"attempts"`
	DelayMS  int `yaml:"delay_ms"`
}

// LoadConfig loads the full application configuration, including rules, from a YAML file.
// It expands environment variables, applies defaults, and normalizes rules.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return cfg, err
	}

	applyDefaults(&cfg.AppConfig)
	normalized, err := normalizeRules(cfg.Rules)
	if err != nil {
		return cfg, err
	}
	cfg.Rules = normalized

	return cfg, nil
}

// RulesConfig represents the rule-specific parts of the configuration.
type RulesConfig struct {
	Rules  []Rule
	Strict bool
	Logger *slog.Logger
}

func applyDefaults(cfg *AppConfig) {
	cfg.Server.setDefaults()
	setDefault(&cfg.Log.Level, DefaultLogLevel)
	setDefault(&cfg.Log.Format, "json")
	cfg.Watermill.setDefaults()
}

// setDefault assigns def when *field holds its zero value.
func setDefault[T comparable](field *T, def T) {
	var zero T
	if *field == zero {
		*field = def
	}
}

func (s *ServerConfig) setDefaults() {
	setDefault(&s.Port, 8080)
	setDefault(&s.ReadTimeoutMS, 5000)
	setDefault(&s.WriteTimeoutMS, 10000)
	setDefault(&s.IdleTimeoutMS, 60000)
	setDefault(&s.ReadHeaderMS, 5000)
	setDefault(&s.MaxBodyBytes, 1<<20)
	setDefault(&s.MetricsPath, "/debug/vars")
	port := strconv.Itoa(s.Port)
	setDefault(&s.ListenAddr, ":"+port)
	setDefault(&s.BaseURL, "http://localhost:"+port)
}

func (w *WatermillConfig) setDefaults() {
	setDefault(&w.Driver, "gochannel")
	setDefault(&w.GoChannel.OutputChannelBuffer, 64)
	setDefault(&w.HTTP.Mode, "topic_url")

	rq := &w.RiverQueue
	setDefault(&rq.Table, "river_job")
	setDefault(&rq.Queue, "default")
	setDefault(&rq.Kind, RiverEventKind)
	setDefault(&rq.MaxAttempts, 25)

	setDefault(&w.PublishRetry.Attempts, 3)
	setDefault(&w.PublishRetry.DelayMS, 500)
}

func normalizeRules(rules []Rule) ([]Rule, error) {
	out := make([]Rule, 0, len(rules))
	for i := range rules {
		rule := rules[i]
		rule.When = strings.TrimSpace(rule.When)
		emit := make(EmitList, 0, len(rule.Emit))
		for _, topic := range rule.Emit {
			if trimmed := strings.TrimSpace(topic); trimmed != "" {
				emit = append(emit, trimmed)
			}
		}
		rule.Emit = emit
		if rule.When == "" || len(rule.Emit) == 0 {
			return nil, fmt.Errorf("rule %d is missing when or emit", i)
		}
		if len(rule.Drivers) > 0 {
			drivers := make([]string, 0, len(rule.Drivers))
			for _, driver := range rule.Drivers {
				trimmed := strings.TrimSpace(driver)
				if trimmed != "" {
					drivers = append(drivers, trimmed)
				}
			}
			rule.Drivers = drivers
		}
		out = append(out, rule)
	}
	return out, nil
}
