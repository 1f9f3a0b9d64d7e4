package config

import (
	"net"
	"strconv"
	"time"
)

// RelayConfig is the root configuration for a signaling relay process.
type RelayConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Matching   MatchingConfig   `yaml:"matching"`
	Relay      RelayOptions     `yaml:"relay"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig holds the WebSocket listener settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Path           string        `yaml:"path"`
	MaxConnections int           `yaml:"max_connections"`
	ReadLimit      int64         `yaml:"read_limit"`    // Max frame size in bytes
	WriteTimeout   time.Duration `yaml:"write_timeout"` // Send deadline per peer
	PingInterval   time.Duration `yaml:"ping_interval"`
	PongTimeout    time.Duration `yaml:"pong_timeout"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// MatchingConfig controls the random-peer matching policy.
type MatchingConfig struct {
	// RemoveMatched drops a target from the waiting pool once it has been
	// offered to a requester. Off by default: targets stay matchable until
	// they disconnect.
	RemoveMatched bool `yaml:"remove_matched"`
}

// RelayOptions controls opaque frame relaying.
type RelayOptions struct {
	NotifyUnknownTarget bool `yaml:"notify_unknown_target"`
}

// EvaluationConfig holds the location log and its persistence settings.
type EvaluationConfig struct {
	Path          string        `yaml:"path"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	MaxBuckets    int           `yaml:"max_buckets"` // 0 = unbounded
	Retention     time.Duration `yaml:"retention"`   // 0 = keep forever
	Postgres      PostgresSink  `yaml:"postgres"`
	Mongo         MongoSink     `yaml:"mongo"`
}

// PostgresSink configures the optional PostgreSQL evaluation sink.
type PostgresSink struct {
	Enabled  bool     `yaml:"enabled"`
	Table    string   `yaml:"table"`
	Database DBConfig `yaml:"database"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// MongoSink configures the optional MongoDB evaluation sink.
type MongoSink struct {
	Enabled          bool          `yaml:"enabled"`
	URI              string        `yaml:"uri"`
	Database         string        `yaml:"database"`
	Collection       string        `yaml:"collection"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`
	OperationTimeout time.Duration `yaml:"operation_timeout"`
}

// LoggingConfig holds process and frame log settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Dir    string `yaml:"dir"`    // Directory for per-run frame logs
	Frames bool   `yaml:"frames"` // Record every received/sent frame
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}
