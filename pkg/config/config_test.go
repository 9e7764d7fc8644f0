package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "market-updates", cfg.Kafka.Topic)
	assert.Equal(t, "aggregator_group", cfg.Kafka.GroupID)
	assert.Equal(t, 100*time.Millisecond, cfg.Kafka.PollTimeout)
	assert.Equal(t, 5000, cfg.Aggregator.BatchSize)
	assert.Equal(t, 100*time.Millisecond, cfg.Aggregator.FlushInterval)
	assert.Equal(t, 10*time.Millisecond, cfg.Aggregator.IdleSleep)
	assert.Equal(t, 100, cfg.Aggregator.CachePipelineLimit)
	assert.Equal(t, 5*time.Second, cfg.Aggregator.StatsInterval)
	assert.Zero(t, cfg.Aggregator.QueueLimit)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("KAFKA_TOPIC", "ticks")
	t.Setenv("AGGREGATOR_BATCH_SIZE", "250")
	t.Setenv("AGGREGATOR_FLUSH_INTERVAL", "1s")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "ticks", cfg.Kafka.Topic)
	assert.Equal(t, 250, cfg.Aggregator.BatchSize)
	assert.Equal(t, time.Second, cfg.Aggregator.FlushInterval)
}

func TestLoadConfig_RejectsBadBatchSize(t *testing.T) {
	t.Setenv("AGGREGATOR_BATCH_SIZE", "0")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestUseHosts(t *testing.T) {
	cfg := &Config{Redis: RedisConfig{Addr: "localhost:6380"}, Postgres: PostgresConfig{Host: "localhost"}}

	cfg.UseHosts("k1:9092,k2:9092", "10.0.0.5")

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "10.0.0.5:6380", cfg.Redis.Addr)
	assert.Equal(t, "10.0.0.5", cfg.Postgres.Host)
}

func TestUseHosts_DefaultRedisPort(t *testing.T) {
	cfg := &Config{Redis: RedisConfig{Addr: "bogus"}}

	cfg.UseHosts("localhost:9092", "cachebox")

	assert.Equal(t, "cachebox:6379", cfg.Redis.Addr)
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, DBName: "market_data", User: "postgres", Password: "pw", SSLMode: "disable"}

	assert.Equal(t, "host=db port=5432 dbname=market_data user=postgres password=pw sslmode=disable", p.DSN())
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(LoggerConfig{Level: "debug"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1))

	_, err = NewLogger(LoggerConfig{Level: "loud"})
	assert.Error(t, err)
}
