package config

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds every knob of a memlab run. Flags default to Default(), so a
// bare `memlab` behaves like the classic script.
type Config struct {
	// Demonstration sizes.
	Count       int // elements per container in the data structure comparison
	LazyCount   int // elements in the lazy vs eager comparison
	PoolSize    int // bounded pool capacity
	Iterations  int // acquire/release rounds in the pooling demonstration
	FactoryCost time.Duration

	// Recording and publishing.
	RecordDir   string
	Brokers     []string
	Topic       string
	KafkaClient string
	PublishTick time.Duration

	// Serving.
	Addr        string
	MetricsAddr string

	LogLevel  string
	LogFormat string
}

const (
	KafkaClientSarama  = "sarama"
	KafkaClientKafkaGo = "kafka-go"
)

// Default returns the configuration of the classic run.
func Default() Config {
	return Config{
		Count:       100_000,
		LazyCount:   1_000_000,
		PoolSize:    10,
		Iterations:  1000,
		FactoryCost: time.Millisecond,
		Topic:       "memlab.reports",
		KafkaClient: KafkaClientSarama,
		PublishTick: 250 * time.Millisecond,
		Addr:        ":50051",
		MetricsAddr: ":9090",
		LogLevel:    "info",
		LogFormat:   "console",
	}
}

// Normalize fills empty names and a zero publish interval with defaults and
// rejects impossible values. Sizes are taken as given: zero is a valid size.
func (c *Config) Normalize() error {
	d := Default()
	if c.Topic == "" {
		c.Topic = d.Topic
	}
	if c.KafkaClient == "" {
		c.KafkaClient = d.KafkaClient
	}
	if c.PublishTick == 0 {
		c.PublishTick = d.PublishTick
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = d.LogFormat
	}

	switch {
	case c.Count < 0, c.LazyCount < 0, c.Iterations < 0:
		return errors.Newf("config: sizes must not be negative (count=%d lazy-count=%d iterations=%d)",
			c.Count, c.LazyCount, c.Iterations)
	case c.PoolSize < 0:
		return errors.Newf("config: pool-size must not be negative, got %d", c.PoolSize)
	case c.FactoryCost < 0:
		return errors.Newf("config: factory-cost must not be negative, got %s", c.FactoryCost)
	}
	switch c.KafkaClient {
	case KafkaClientSarama, KafkaClientKafkaGo:
	default:
		return errors.Newf("config: unknown kafka client %q", c.KafkaClient)
	}
	if len(c.Brokers) > 0 && c.RecordDir == "" {
		return errors.New("config: publishing needs --record, reports are published from the store")
	}
	return nil
}

// Publishing reports whether reports should be sent to Kafka.
func (c Config) Publishing() bool { return len(c.Brokers) > 0 }

// RegisterFlags declares the run flags on fs with defaults from Default.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.Int("count", d.Count, "elements per container in the data structure comparison")
	fs.Int("lazy-count", d.LazyCount, "elements in the lazy vs eager comparison")
	fs.Int("pool-size", d.PoolSize, "bounded pool capacity")
	fs.Int("iterations", d.Iterations, "acquire/release rounds in the pooling demonstration")
	fs.Duration("factory-cost", d.FactoryCost, "simulated construction cost of a pooled object")
	fs.String("record", "", "pebble directory to record reports in")
	fs.StringSlice("publish", nil, "kafka brokers to publish recorded reports to")
	fs.String("topic", d.Topic, "kafka topic for published reports")
	fs.String("kafka-client", d.KafkaClient, "kafka client: sarama or kafka-go")
	fs.Duration("publish-interval", d.PublishTick, "how often pending reports are published")
	fs.String("log-level", d.LogLevel, "debug, info, warn or error")
	fs.String("log-format", d.LogFormat, "console or json")
}

// RegisterServeFlags declares the flags only the serve command uses.
func RegisterServeFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("addr", d.Addr, "gRPC listen address")
	fs.String("metrics-addr", d.MetricsAddr, "prometheus listen address, empty disables it")
}

// NewViper returns a viper instance reading MEMLAB_* environment variables,
// with dashes in flag names mapped to underscores.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("memlab")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads a Config from v after the caller bound its flags.
func Load(v *viper.Viper) (Config, error) {
	c := Config{
		Count:       v.GetInt("count"),
		LazyCount:   v.GetInt("lazy-count"),
		PoolSize:    v.GetInt("pool-size"),
		Iterations:  v.GetInt("iterations"),
		FactoryCost: v.GetDuration("factory-cost"),
		RecordDir:   v.GetString("record"),
		Brokers:     splitList(v.Get("publish")),
		Topic:       v.GetString("topic"),
		KafkaClient: v.GetString("kafka-client"),
		PublishTick: v.GetDuration("publish-interval"),
		Addr:        v.GetString("addr"),
		MetricsAddr: v.GetString("metrics-addr"),
		LogLevel:    v.GetString("log-level"),
		LogFormat:   v.GetString("log-format"),
	}
	if err := c.Normalize(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// splitList accepts a list from a flag ([]string) or a comma separated
// string from the environment.
func splitList(raw any) []string {
	var parts []string
	switch v := raw.(type) {
	case string:
		parts = strings.Split(v, ",")
	case []string:
		for _, item := range v {
			parts = append(parts, strings.Split(item, ",")...)
		}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				parts = append(parts, strings.Split(s, ",")...)
			}
		}
	}
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
