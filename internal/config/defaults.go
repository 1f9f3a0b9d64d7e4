package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultHost                = "localhost"
	DefaultPort                = 8080
	DefaultPath                = "/"
	DefaultMaxConnections      = 10000
	DefaultReadLimit           = 64 * 1024
	DefaultWriteTimeout        = 10 * time.Second
	DefaultPingInterval        = 30 * time.Second
	DefaultPongTimeout         = 60 * time.Second
	DefaultEvaluationPath      = "evaluation.json"
	DefaultFlushInterval       = 5 * time.Second
	DefaultEvaluationTable     = "evaluation_locations"
	DefaultDBPort              = 5432
	DefaultDBSSLMode           = "prefer"
	DefaultMaxConns            = 4
	DefaultMinConns            = 1
	DefaultMongoDatabase       = "mist"
	DefaultMongoCollection     = "evaluation_buckets"
	DefaultMongoConnectTimeout = 10 * time.Second
	DefaultMongoOpTimeout      = 5 * time.Second
	DefaultLogLevel            = "info"
	DefaultLogDir              = "logs"
	DefaultMetricsPort         = 9090
	DefaultMetricsPath         = "/metrics"
)

func (c *RelayConfig) applyDefaults() {
	// Server defaults
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.Path == "" {
		c.Server.Path = DefaultPath
	}
	if c.Server.MaxConnections == 0 {
		c.Server.MaxConnections = DefaultMaxConnections
	}
	if c.Server.ReadLimit == 0 {
		c.Server.ReadLimit = DefaultReadLimit
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.PingInterval == 0 {
		c.Server.PingInterval = DefaultPingInterval
	}
	if c.Server.PongTimeout == 0 {
		c.Server.PongTimeout = DefaultPongTimeout
	}

	// Evaluation defaults
	if c.Evaluation.Path == "" {
		c.Evaluation.Path = DefaultEvaluationPath
	}
	if c.Evaluation.FlushInterval == 0 {
		c.Evaluation.FlushInterval = DefaultFlushInterval
	}
	if c.Evaluation.Postgres.Table == "" {
		c.Evaluation.Postgres.Table = DefaultEvaluationTable
	}
	applyDBDefaults(&c.Evaluation.Postgres.Database)

	if c.Evaluation.Mongo.Database == "" {
		c.Evaluation.Mongo.Database = DefaultMongoDatabase
	}
	if c.Evaluation.Mongo.Collection == "" {
		c.Evaluation.Mongo.Collection = DefaultMongoCollection
	}
	if c.Evaluation.Mongo.ConnectTimeout == 0 {
		c.Evaluation.Mongo.ConnectTimeout = DefaultMongoConnectTimeout
	}
	if c.Evaluation.Mongo.OperationTimeout == 0 {
		c.Evaluation.Mongo.OperationTimeout = DefaultMongoOpTimeout
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = DefaultLogDir
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
