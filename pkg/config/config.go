package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Version is set at build time with -ldflags "-X github.com/edgeflare/threatflow/pkg/config.Version=..."
var Version = "dev"

// EnvAPIKey is read in addition to THREATFLOW_FEED_APIKEY.
const EnvAPIKey = "OTX_API_KEY"

// Config holds application-wide configuration
type Config struct {
	Feed     FeedConfig     `mapstructure:"feed"`
	Broker   BrokerConfig   `mapstructure:"broker"`
	Producer ProducerConfig `mapstructure:"producer"`
	Enricher EnricherConfig `mapstructure:"enricher"`
	Consumer ConsumerConfig `mapstructure:"consumer"`
	Store    StoreConfig    `mapstructure:"store"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type FeedConfig struct {
	URL          string        `mapstructure:"url"`
	APIKey       string        `mapstructure:"apiKey"`
	APIKeyHeader string        `mapstructure:"apiKeyHeader"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// BrokerConfig selects a stream connector. Config is handed to the connector as JSON.
// Brokers, when set, overrides the connector's broker or server list.
// ConnectTimeout bounds connection retries at startup.
type BrokerConfig struct {
	Config         map[string]any `mapstructure:"config"`
	Connector      string         `mapstructure:"connector"`
	Brokers        []string       `mapstructure:"brokers"`
	ConnectTimeout time.Duration  `mapstructure:"connectTimeout"`
}

type ProducerConfig struct {
	Topic     string `mapstructure:"topic"`
	Key       string `mapstructure:"key"`
	Partition int32  `mapstructure:"partition"`
}

type EnricherConfig struct {
	SourceTopic string `mapstructure:"sourceTopic"`
	SinkTopic   string `mapstructure:"sinkTopic"`
	Offset      string `mapstructure:"offset"`
	Partition   int32  `mapstructure:"partition"`
}

type ConsumerConfig struct {
	Topic     string `mapstructure:"topic"`
	Offset    string `mapstructure:"offset"`
	Partition int32  `mapstructure:"partition"`
}

type StoreConfig struct {
	ConnString     string        `mapstructure:"connString"`
	Table          string        `mapstructure:"table"`
	Schema         string        `mapstructure:"schema"`
	EnsureTable    bool          `mapstructure:"ensureTable"`
	MaxConns       int32         `mapstructure:"maxConns"`
	ConnectTimeout time.Duration `mapstructure:"connectTimeout"`
}

type MetricsConfig struct {
	Addr    string `mapstructure:"addr"`
	Enabled bool   `mapstructure:"enabled"`
}

var defaults = map[string]any{
	"feed.url":              "https://otx.alienvault.com/api/v1/pulses/subscribed",
	"feed.apiKeyHeader":     "X-OTX-API-KEY",
	"feed.interval":         "60s",
	"feed.timeout":          "30s",
	"broker.connector":      "kafka",
	"broker.brokers":        "",
	"broker.connectTimeout": "30s",
	"producer.topic":        "otx-blue",
	"producer.key":          "default-key",
	"producer.partition":    0,
	"enricher.sourceTopic":  "otx-blue",
	"enricher.sinkTopic":    "enriched-records",
	"enricher.offset":       "beginning",
	"enricher.partition":    0,
	"consumer.topic":        "enriched-records",
	"consumer.offset":       "beginning",
	"consumer.partition":    0,
	"store.connString":      "",
	"store.schema":          "",
	"store.table":           "enriched_records",
	"store.maxConns":        0,
	"store.ensureTable":     true,
	"store.connectTimeout":  "30s",
	"metrics.enabled":       false,
	"metrics.addr":          ":9100",
}

// New returns a viper instance with defaults and environment bindings but no file loaded.
// Environment variables use the THREATFLOW prefix, e.g. THREATFLOW_STORE_CONNSTRING.
func New() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix("THREATFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("feed.apiKey", "THREATFLOW_FEED_APIKEY", EnvAPIKey)
	return v
}

// Load reads config from file or environment
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("threatflow")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config"))
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	return &cfg, nil
}
