// Package config contains all knobs and defaults used to configure features of
// merchantd when running as a standalone server.
package config

import (
	"errors"
	"fmt"
	"net"
	"time"
)

const (
	DefaultPageSize    = 50
	DefaultMaxPageSize = 100

	DefaultExportMaxRecords    = 100000
	DefaultExportFlushInterval = 100

	DefaultBulkBatchSize            = 100
	DefaultBulkMaxRecordsPerRequest = 1000

	// MaxBulkBatchSize caps the per-request batch_size override.
	MaxBulkBatchSize = 1000

	DefaultRateLimitLimit          = 120
	DefaultRateLimitWindow         = time.Minute
	DefaultRateLimitMaxQueueLength = 0
	DefaultRateLimitPartitionBy    = "ip"

	DefaultCacheLocalTTL        = 10 * time.Second
	DefaultCacheSharedTTL       = time.Minute
	DefaultCacheMaxLocalEntries = 10000
)

type DatastoreMetricsConfig struct {
	// Enabled enables export of the Datastore metrics.
	Enabled bool
}

// DatastoreConfig defines merchantd server configurations for datastore specific settings.
type DatastoreConfig struct {
	// Engine is the datastore engine to use (e.g. 'memory', 'sqlite', 'postgres', 'mysql')
	Engine   string
	URI      string
	Username string
	Password string

	// MaxOpenConns is the maximum number of open connections to the database.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of connections to the datastore in the idle connection
	// pool.
	MaxIdleConns int

	// ConnMaxIdleTime is the maximum amount of time a connection to the datastore may be idle.
	ConnMaxIdleTime time.Duration

	// ConnMaxLifetime is the maximum amount of time a connection to the datastore may be reused.
	ConnMaxLifetime time.Duration

	// Metrics is configuration for the Datastore metrics.
	Metrics DatastoreMetricsConfig
}

// HTTPConfig defines merchantd server configurations for HTTP server specific settings.
type HTTPConfig struct {
	Addr string
	TLS  *TLSConfig

	// ShutdownTimeout bounds how long a graceful shutdown waits for in-flight
	// requests before the listener is torn down.
	ShutdownTimeout time.Duration

	CORSAllowedOrigins []string
	CORSAllowedHeaders []string
}

// TLSConfig defines configuration specific to Transport Layer Security (TLS) settings.
type TLSConfig struct {
	Enabled  bool
	CertPath string `mapstructure:"cert"`
	KeyPath  string `mapstructure:"key"`
}

// LogConfig defines merchantd server configurations for log specific settings. For production we
// recommend using the 'json' log format.
type LogConfig struct {
	// Format is the log format to use in the log output (e.g. 'text' or 'json')
	Format string

	// Level is the log level to use in the log output (e.g. 'none', 'debug', or 'info')
	Level string

	// Format of the timestamp in the log output (e.g. 'Unix'(default) or 'ISO8601')
	TimestampFormat string
}

type TraceConfig struct {
	Enabled     bool
	OTLP        OTLPTraceConfig `mapstructure:"otlp"`
	SampleRatio float64
	ServiceName string
}

type OTLPTraceConfig struct {
	Endpoint string
	TLS      OTLPTraceTLSConfig
}

type OTLPTraceTLSConfig struct {
	Enabled bool
}

// ProfilerConfig defines server configurations specific to pprof profiling.
type ProfilerConfig struct {
	Enabled bool
	Addr    string
}

// MetricConfig defines configurations for serving custom metrics from merchantd.
type MetricConfig struct {
	Enabled bool
	Addr    string

	// EnableRequestHistograms turns on per-route request duration histograms
	// in the HTTP middleware.
	EnableRequestHistograms bool
}

// PaginationConfig bounds the page sizes served by list endpoints.
type PaginationConfig struct {
	// DefaultPageSize is used when a request carries no page_size.
	DefaultPageSize int

	// MaxPageSize is the clamp ceiling for client-supplied page sizes.
	MaxPageSize int
}

// ExportConfig carries the streaming export safeguards.
type ExportConfig struct {
	// MaxRecords is the server-side record ceiling for one export stream.
	// A client max_records override is min'd against it.
	MaxRecords int

	// FlushInterval is the number of records written between sink flushes.
	FlushInterval int
}

// BulkConfig bounds the transactional bulk-mutation endpoints.
type BulkConfig struct {
	// BatchSize is how many matched rows are updated per chunk inside the
	// bulk transaction. A per-request batch_size override is clamped to
	// [1, MaxBulkBatchSize].
	BatchSize int

	// MaxRecordsPerRequest caps the number of input records one bulk request
	// may carry.
	MaxRecordsPerRequest int
}

// RateLimitConfig defines the fixed-window admission control applied to
// export routes.
type RateLimitConfig struct {
	Enabled bool

	// Limit is the number of admissions per window per partition.
	Limit int

	// Window is the fixed window duration.
	Window time.Duration

	// MaxQueueLength is how many over-limit requests may wait for a future
	// window. Zero disables queueing.
	MaxQueueLength int

	// PartitionBy selects the partition key source: 'user', 'api-key' or 'ip'.
	PartitionBy string
}

// CacheConfig defines the two-tier read cache in front of the datastore.
type CacheConfig struct {
	Enabled bool

	// LocalTTL is the in-process tier TTL. It cannot exceed SharedTTL.
	LocalTTL time.Duration

	// SharedTTL is the shared tier TTL.
	SharedTTL time.Duration

	// MaxLocalEntries is the in-process LRU capacity.
	MaxLocalEntries int
}

type Config struct {
	Datastore  DatastoreConfig
	HTTP       HTTPConfig
	Log        LogConfig
	Trace      TraceConfig
	Profiler   ProfilerConfig
	Metrics    MetricConfig
	Pagination PaginationConfig
	Export     ExportConfig
	Bulk       BulkConfig
	RateLimit  RateLimitConfig `mapstructure:"ratelimit"`
	Cache      CacheConfig
}

func (cfg *Config) Verify() error {
	switch cfg.Datastore.Engine {
	case "memory", "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("config 'datastore.engine' must be one of ['memory', 'sqlite', 'postgres', 'mysql']")
	}

	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		return fmt.Errorf("config 'log.format' must be one of ['text', 'json']")
	}

	if cfg.Log.Level != "none" &&
		cfg.Log.Level != "debug" &&
		cfg.Log.Level != "info" &&
		cfg.Log.Level != "warn" &&
		cfg.Log.Level != "error" &&
		cfg.Log.Level != "panic" &&
		cfg.Log.Level != "fatal" {
		return fmt.Errorf(
			"config 'log.level' must be one of ['none', 'debug', 'info', 'warn', 'error', 'panic', 'fatal']",
		)
	}

	if cfg.Log.TimestampFormat != "Unix" && cfg.Log.TimestampFormat != "ISO8601" {
		return fmt.Errorf("config 'log.TimestampFormat' must be one of ['Unix', 'ISO8601']")
	}

	if cfg.HTTP.TLS.Enabled {
		if cfg.HTTP.TLS.CertPath == "" || cfg.HTTP.TLS.KeyPath == "" {
			return errors.New("'http.tls.cert' and 'http.tls.key' configs must be set")
		}
	}

	if cfg.Pagination.MaxPageSize < 1 || cfg.Pagination.MaxPageSize > DefaultMaxPageSize {
		return fmt.Errorf("config 'pagination.maxPageSize' must be in the range [1, %d]", DefaultMaxPageSize)
	}

	if cfg.Pagination.DefaultPageSize < 1 || cfg.Pagination.DefaultPageSize > cfg.Pagination.MaxPageSize {
		return fmt.Errorf(
			"config 'pagination.defaultPageSize' must be in the range [1, 'pagination.maxPageSize' (%d)]",
			cfg.Pagination.MaxPageSize,
		)
	}

	if cfg.Export.MaxRecords <= 0 {
		return errors.New("config 'export.maxRecords' must be a positive integer")
	}

	if cfg.Export.FlushInterval <= 0 {
		return errors.New("config 'export.flushInterval' must be a positive integer")
	}

	if cfg.Bulk.BatchSize < 1 || cfg.Bulk.BatchSize > MaxBulkBatchSize {
		return fmt.Errorf("config 'bulk.batchSize' must be in the range [1, %d]", MaxBulkBatchSize)
	}

	if cfg.Bulk.MaxRecordsPerRequest <= 0 {
		return errors.New("config 'bulk.maxRecordsPerRequest' must be a positive integer")
	}

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.Limit <= 0 {
			return errors.New("config 'ratelimit.limit' must be a positive integer")
		}
		if cfg.RateLimit.Window <= 0 {
			return errors.New("config 'ratelimit.window' must be a positive duration")
		}
		if cfg.RateLimit.MaxQueueLength < 0 {
			return errors.New("config 'ratelimit.maxQueueLength' must not be negative")
		}
		if cfg.RateLimit.PartitionBy != "user" &&
			cfg.RateLimit.PartitionBy != "api-key" &&
			cfg.RateLimit.PartitionBy != "ip" {
			return fmt.Errorf("config 'ratelimit.partitionBy' must be one of ['user', 'api-key', 'ip']")
		}
	}

	if cfg.Cache.Enabled {
		if cfg.Cache.LocalTTL > cfg.Cache.SharedTTL {
			return fmt.Errorf(
				"config 'cache.localTTL' (%s) cannot be larger than 'cache.sharedTTL' config (%s)",
				cfg.Cache.LocalTTL,
				cfg.Cache.SharedTTL,
			)
		}
		if cfg.Cache.MaxLocalEntries <= 0 {
			return errors.New("config 'cache.maxLocalEntries' must be a positive integer")
		}
	}

	return nil
}

// DefaultConfig is the merchantd server default configurations.
func DefaultConfig() *Config {
	return &Config{
		Datastore: DatastoreConfig{
			Engine:       "memory",
			MaxIdleConns: 10,
			MaxOpenConns: 30,
		},
		HTTP: HTTPConfig{
			Addr:               "0.0.0.0:8080",
			TLS:                &TLSConfig{Enabled: false},
			ShutdownTimeout:    5 * time.Second,
			CORSAllowedOrigins: []string{"*"},
			CORSAllowedHeaders: []string{"*"},
		},
		Log: LogConfig{
			Format:          "text",
			Level:           "info",
			TimestampFormat: "Unix",
		},
		Trace: TraceConfig{
			Enabled: false,
			OTLP: OTLPTraceConfig{
				Endpoint: "0.0.0.0:4317",
				TLS: OTLPTraceTLSConfig{
					Enabled: false,
				},
			},
			SampleRatio: 0.2,
			ServiceName: "merchantd",
		},
		Profiler: ProfilerConfig{
			Enabled: false,
			Addr:    ":3001",
		},
		Metrics: MetricConfig{
			Enabled:                 true,
			Addr:                    "0.0.0.0:2112",
			EnableRequestHistograms: false,
		},
		Pagination: PaginationConfig{
			DefaultPageSize: DefaultPageSize,
			MaxPageSize:     DefaultMaxPageSize,
		},
		Export: ExportConfig{
			MaxRecords:    DefaultExportMaxRecords,
			FlushInterval: DefaultExportFlushInterval,
		},
		Bulk: BulkConfig{
			BatchSize:            DefaultBulkBatchSize,
			MaxRecordsPerRequest: DefaultBulkMaxRecordsPerRequest,
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			Limit:          DefaultRateLimitLimit,
			Window:         DefaultRateLimitWindow,
			MaxQueueLength: DefaultRateLimitMaxQueueLength,
			PartitionBy:    DefaultRateLimitPartitionBy,
		},
		Cache: CacheConfig{
			Enabled:         true,
			LocalTTL:        DefaultCacheLocalTTL,
			SharedTTL:       DefaultCacheSharedTTL,
			MaxLocalEntries: DefaultCacheMaxLocalEntries,
		},
	}
}

// MustDefaultConfig returns default server config with tracing and metrics turned off.
func MustDefaultConfig() *Config {
	config := DefaultConfig()

	config.Metrics.Enabled = false
	config.Trace.Enabled = false

	return config
}

// MustDefaultConfigWithRandomPorts returns default server config but with random ports for the
// http and metrics addresses and with tracing and metrics turned off.
// This function may panic if somehow a random port cannot be chosen.
func MustDefaultConfigWithRandomPorts() *Config {
	config := MustDefaultConfig()

	httpPort, httpPortReleaser := TCPRandomPort()
	defer httpPortReleaser()
	metricsPort, metricsPortReleaser := TCPRandomPort()
	defer metricsPortReleaser()

	config.HTTP.Addr = fmt.Sprintf("0.0.0.0:%d", httpPort)
	config.Metrics.Addr = fmt.Sprintf("0.0.0.0:%d", metricsPort)

	return config
}

// TCPRandomPort tries to find a random TCP Port. If it can't find one, it panics. Else, it returns the port and a function that releases the port.
// It is the responsibility of the caller to call the release function right before trying to listen on the given port.
func TCPRandomPort() (int, func()) {
	l, err := net.Listen("tcp", "")
	if err != nil {
		panic(err)
	}
	return l.Addr().(*net.TCPAddr).Port, func() {
		l.Close()
	}
}
