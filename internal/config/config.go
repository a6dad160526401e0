// Package config holds the typed runtime configuration for the event broker
// frontend, loaded from the environment with sane defaults.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the root configuration for the event broker process.
type Config struct {
	Server     ServerConfig
	Kafka      KafkaConfig
	Zookeeper  ZookeeperConfig
	Streaming  StreamingConfig
	Monitoring MonitoringConfig
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port         string
	Host         string
	Mode         string // gin.DebugMode or gin.ReleaseMode
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig describes how the core talks to the underlying partitioned
// log store, including the defaults used by Topic Repository's createTopic.
type KafkaConfig struct {
	Brokers             []string
	RequestTimeout      time.Duration
	SendTimeout         time.Duration
	PollTimeout         time.Duration
	ReplicationFactor   int16
	SegmentRotationMs   int64
	DefaultRetentionMs  int64
	ProducerPoolSize    int
}

// ZookeeperConfig describes the coordination service connection. It is
// loaded but not used: topic administration (createTopic/deleteTopic/
// topicExists) talks to the Kafka brokers listed in KafkaConfig.
type ZookeeperConfig struct {
	ConnectString     string
	SessionTimeout    time.Duration
	ConnectionTimeout time.Duration
}

// StreamingConfig controls default limits for the streaming controller
// when a request does not override them via query parameters.
type StreamingConfig struct {
	BatchLimit          int
	StreamLimit         int
	BatchFlushTimeout   time.Duration
	StreamTimeout       time.Duration
	StreamKeepAliveLimit int
	MaxConnectionsPerPartition int
	// LimitConsumersNumber toggles connection-slot admission for streaming
	// consumers.
	LimitConsumersNumber bool
}

// MonitoringConfig controls logging and metrics behavior.
type MonitoringConfig struct {
	LogLevel       string
	MetricsEnabled bool
	MetricsPath    string
}

// Load builds a Config from environment variables, falling back to
// production-sane defaults for anything unset.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Mode:         getEnv("GIN_MODE", "release"),
			ReadTimeout:  getDurationEnv("READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDurationEnv("WRITE_TIMEOUT", 0), // streaming responses must not be write-deadlined
		},
		Kafka: KafkaConfig{
			Brokers:            getEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			RequestTimeout:     getDurationEnv("KAFKA_REQUEST_TIMEOUT_MS", 10*time.Second),
			SendTimeout:        getDurationEnv("KAFKA_SEND_TIMEOUT_MS", 5*time.Second),
			PollTimeout:        getDurationEnv("KAFKA_POLL_TIMEOUT_MS", 3*time.Second),
			ReplicationFactor:  int16(getIntEnv("KAFKA_REPLICATION_FACTOR", 3)),
			SegmentRotationMs:  int64(getIntEnv("KAFKA_SEGMENT_ROTATION_MS", 24*60*60*1000)),
			DefaultRetentionMs: int64(getIntEnv("KAFKA_DEFAULT_RETENTION_MS", 48*60*60*1000)),
			ProducerPoolSize:   getIntEnv("KAFKA_PRODUCER_POOL_SIZE", 8),
		},
		Zookeeper: ZookeeperConfig{
			ConnectString:     getEnv("ZOOKEEPER_CONNECT", "localhost:2181"),
			SessionTimeout:    getDurationEnv("ZOOKEEPER_SESSION_TIMEOUT", 10*time.Second),
			ConnectionTimeout: getDurationEnv("ZOOKEEPER_CONNECTION_TIMEOUT", 5*time.Second),
		},
		Streaming: StreamingConfig{
			BatchLimit:                 getIntEnv("STREAM_BATCH_LIMIT", 1),
			StreamLimit:                getIntEnv("STREAM_LIMIT", 0), // 0 == unbounded
			BatchFlushTimeout:          getDurationEnv("STREAM_BATCH_FLUSH_TIMEOUT", 5*time.Second),
			StreamTimeout:              getDurationEnv("STREAM_TIMEOUT", 0),
			StreamKeepAliveLimit:       getIntEnv("STREAM_KEEP_ALIVE_LIMIT", 0),
			MaxConnectionsPerPartition: getIntEnv("MAX_CONNECTIONS_PER_PARTITION", 5),
			LimitConsumersNumber:       getBoolEnv("FEATURE_LIMIT_CONSUMERS_NUMBER", true),
		},
		Monitoring: MonitoringConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			MetricsEnabled: getBoolEnv("METRICS_ENABLED", true),
			MetricsPath:    getEnv("METRICS_PATH", "/metrics"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
