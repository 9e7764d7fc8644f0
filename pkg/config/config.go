package config

import (
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the aggregator, producer and snapshot tools
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logger     LoggerConfig     `mapstructure:"logger"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Aggregator AggregatorConfig `mapstructure:"aggregator"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Producer   ProducerConfig   `mapstructure:"producer"`
}

type AppConfig struct {
	Env string `mapstructure:"env"` // e.g., "local", "prod"
}

type LoggerConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers        []string      `mapstructure:"brokers"`
	Topic          string        `mapstructure:"topic"`
	GroupID        string        `mapstructure:"group_id"`
	PollTimeout    time.Duration `mapstructure:"poll_timeout"`
	CommitInterval time.Duration `mapstructure:"commit_interval"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	DBName   string `mapstructure:"dbname"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// AggregatorConfig carries the pipeline constants. They are read once at
// startup and never change while the pipeline runs.
type AggregatorConfig struct {
	BatchSize          int           `mapstructure:"batch_size"`
	FlushInterval      time.Duration `mapstructure:"flush_interval"`
	IdleSleep          time.Duration `mapstructure:"idle_sleep"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	CachePipelineLimit int           `mapstructure:"cache_pipeline_limit"`
	StatsInterval      time.Duration `mapstructure:"stats_interval"`
	QueueLimit         int           `mapstructure:"queue_limit"` // 0 = unbounded
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // empty disables the /metrics endpoint
}

type ProducerConfig struct {
	Workers    int           `mapstructure:"workers"`
	Tickers    []string      `mapstructure:"tickers"`
	BatchSize  int           `mapstructure:"batch_size"`
	Interval   time.Duration `mapstructure:"interval"`
	Partitions int           `mapstructure:"partitions"`
}

// LoadConfig reads configuration from .env file, environment variables, and defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// Load .env into the process environment so viper sees it as real env vars
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}

	setDefaults(v)

	// "kafka.group_id" -> "KAFKA_GROUP_ID"
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv alone does not reach nested keys during Unmarshal
	bindEnv(v, "app.env")
	bindEnv(v, "logger.level", "logger.development")
	bindEnv(v, "redis.addr", "redis.password", "redis.db")
	bindEnv(v, "kafka.brokers", "kafka.topic", "kafka.group_id", "kafka.poll_timeout", "kafka.commit_interval", "kafka.dial_timeout")
	bindEnv(v, "postgres.host", "postgres.port", "postgres.dbname", "postgres.user", "postgres.password", "postgres.sslmode")
	bindEnv(v, "aggregator.batch_size", "aggregator.flush_interval", "aggregator.idle_sleep", "aggregator.write_timeout",
		"aggregator.shutdown_timeout", "aggregator.cache_pipeline_limit", "aggregator.stats_interval", "aggregator.queue_limit")
	bindEnv(v, "metrics.addr")
	bindEnv(v, "producer.workers", "producer.tickers", "producer.batch_size", "producer.interval", "producer.partitions")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "local")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.development", false)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "market-updates")
	v.SetDefault("kafka.group_id", "aggregator_group")
	v.SetDefault("kafka.poll_timeout", 100*time.Millisecond)
	v.SetDefault("kafka.commit_interval", time.Second)
	v.SetDefault("kafka.dial_timeout", 10*time.Second)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.dbname", "market_data")
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "postgres")
	v.SetDefault("postgres.sslmode", "disable")

	v.SetDefault("aggregator.batch_size", 5000)
	v.SetDefault("aggregator.flush_interval", 100*time.Millisecond)
	v.SetDefault("aggregator.idle_sleep", 10*time.Millisecond)
	v.SetDefault("aggregator.write_timeout", 10*time.Second)
	v.SetDefault("aggregator.shutdown_timeout", 5*time.Second)
	v.SetDefault("aggregator.cache_pipeline_limit", 100)
	v.SetDefault("aggregator.stats_interval", 5*time.Second)
	v.SetDefault("aggregator.queue_limit", 0)

	v.SetDefault("metrics.addr", ":2112")

	v.SetDefault("producer.workers", 4)
	v.SetDefault("producer.tickers", []string{"AAPL", "GOOG", "MSFT", "AMZN", "TSLA", "NVDA", "JPM", "BAC"})
	v.SetDefault("producer.batch_size", 100)
	v.SetDefault("producer.interval", 10*time.Millisecond)
	v.SetDefault("producer.partitions", 1)
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers cannot be empty")
	}
	if c.Kafka.Topic == "" {
		return fmt.Errorf("kafka topic cannot be empty")
	}
	if c.Aggregator.BatchSize <= 0 {
		return fmt.Errorf("aggregator batch_size must be positive, got %d", c.Aggregator.BatchSize)
	}
	if c.Aggregator.FlushInterval <= 0 {
		return fmt.Errorf("aggregator flush_interval must be positive, got %s", c.Aggregator.FlushInterval)
	}
	if c.Aggregator.CachePipelineLimit <= 0 {
		return fmt.Errorf("aggregator cache_pipeline_limit must be positive, got %d", c.Aggregator.CachePipelineLimit)
	}
	if c.Aggregator.QueueLimit < 0 {
		return fmt.Errorf("aggregator queue_limit cannot be negative, got %d", c.Aggregator.QueueLimit)
	}
	return nil
}

// UseHosts applies the positional command line hosts. The broker argument may
// be a comma separated list. The store is assumed to live on the cache host.
func (c *Config) UseHosts(brokers, cacheHost string) {
	if brokers != "" {
		c.Kafka.Brokers = strings.Split(brokers, ",")
	}
	if cacheHost == "" {
		return
	}
	port := "6379"
	if _, p, err := net.SplitHostPort(c.Redis.Addr); err == nil && p != "" {
		port = p
	}
	c.Redis.Addr = net.JoinHostPort(cacheHost, port)
	c.Postgres.Host = cacheHost
}

// DSN renders the lib/pq key/value connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		p.Host, p.Port, p.DBName, p.User, p.Password, p.SSLMode)
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}
