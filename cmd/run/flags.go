package run

import (
	"github.com/spf13/cobra"

	"github.com/merchantd/merchantd/cmd/util"
	serverconfig "github.com/merchantd/merchantd/internal/server/config"
)

// bindRunFlags binds the cobra cmd flags to the equivalent config value being managed
// by viper. This bridges the config between cobra flags and viper flags.
func bindRunFlags(command *cobra.Command) {
	defaultConfig := serverconfig.DefaultConfig()
	flags := command.Flags()

	flags.String("http-addr", defaultConfig.HTTP.Addr, "the host:port address to serve the HTTP server on")
	util.MustBindPFlag("http.addr", flags.Lookup("http-addr"))
	util.MustBindEnv("http.addr", "MERCHANTD_HTTP_ADDR")

	flags.Bool("http-tls-enabled", defaultConfig.HTTP.TLS.Enabled, "enable/disable transport layer security (TLS)")
	util.MustBindPFlag("http.tls.enabled", flags.Lookup("http-tls-enabled"))
	util.MustBindEnv("http.tls.enabled", "MERCHANTD_HTTP_TLS_ENABLED")

	flags.String("http-tls-cert", defaultConfig.HTTP.TLS.CertPath, "the (absolute) file path of the certificate to use for the TLS connection")
	util.MustBindPFlag("http.tls.cert", flags.Lookup("http-tls-cert"))
	util.MustBindEnv("http.tls.cert", "MERCHANTD_HTTP_TLS_CERT")

	flags.String("http-tls-key", defaultConfig.HTTP.TLS.KeyPath, "the (absolute) file path of the TLS key that should be used for the TLS connection")
	util.MustBindPFlag("http.tls.key", flags.Lookup("http-tls-key"))
	util.MustBindEnv("http.tls.key", "MERCHANTD_HTTP_TLS_KEY")

	command.MarkFlagsRequiredTogether("http-tls-enabled", "http-tls-cert", "http-tls-key")

	flags.Duration("http-shutdown-timeout", defaultConfig.HTTP.ShutdownTimeout, "the amount of time a graceful shutdown waits for in-flight requests before closing the listener")
	util.MustBindPFlag("http.shutdownTimeout", flags.Lookup("http-shutdown-timeout"))
	util.MustBindEnv("http.shutdownTimeout", "MERCHANTD_HTTP_SHUTDOWN_TIMEOUT", "MERCHANTD_HTTP_SHUTDOWNTIMEOUT")

	flags.StringSlice("http-cors-allowed-origins", defaultConfig.HTTP.CORSAllowedOrigins, "specifies the CORS allowed origins")
	util.MustBindPFlag("http.corsAllowedOrigins", flags.Lookup("http-cors-allowed-origins"))
	util.MustBindEnv("http.corsAllowedOrigins", "MERCHANTD_HTTP_CORS_ALLOWED_ORIGINS", "MERCHANTD_HTTP_CORSALLOWEDORIGINS")

	flags.StringSlice("http-cors-allowed-headers", defaultConfig.HTTP.CORSAllowedHeaders, "specifies the CORS allowed headers")
	util.MustBindPFlag("http.corsAllowedHeaders", flags.Lookup("http-cors-allowed-headers"))
	util.MustBindEnv("http.corsAllowedHeaders", "MERCHANTD_HTTP_CORS_ALLOWED_HEADERS", "MERCHANTD_HTTP_CORSALLOWEDHEADERS")

	flags.String(datastoreEngineFlag, defaultConfig.Datastore.Engine, "the datastore engine that will be used for persistence")
	util.MustBindPFlag("datastore.engine", flags.Lookup(datastoreEngineFlag))
	util.MustBindEnv("datastore.engine", "MERCHANTD_DATASTORE_ENGINE")

	flags.String(datastoreURIFlag, defaultConfig.Datastore.URI, "the connection uri to use to connect to the datastore (for any engine other than 'memory')")
	util.MustBindPFlag("datastore.uri", flags.Lookup(datastoreURIFlag))
	util.MustBindEnv("datastore.uri", "MERCHANTD_DATASTORE_URI")

	flags.String("datastore-username", "", "the connection username to connect to the datastore (overwrites any username provided in the connection uri)")
	util.MustBindPFlag("datastore.username", flags.Lookup("datastore-username"))
	util.MustBindEnv("datastore.username", "MERCHANTD_DATASTORE_USERNAME")

	flags.String("datastore-password", "", "the connection password to connect to the datastore (overwrites any password provided in the connection uri)")
	util.MustBindPFlag("datastore.password", flags.Lookup("datastore-password"))
	util.MustBindEnv("datastore.password", "MERCHANTD_DATASTORE_PASSWORD")

	flags.Int("datastore-max-open-conns", defaultConfig.Datastore.MaxOpenConns, "the maximum number of open connections to the datastore")
	util.MustBindPFlag("datastore.maxOpenConns", flags.Lookup("datastore-max-open-conns"))
	util.MustBindEnv("datastore.maxOpenConns", "MERCHANTD_DATASTORE_MAX_OPEN_CONNS", "MERCHANTD_DATASTORE_MAXOPENCONNS")

	flags.Int("datastore-max-idle-conns", defaultConfig.Datastore.MaxIdleConns, "the maximum number of connections to the datastore in the idle connection pool")
	util.MustBindPFlag("datastore.maxIdleConns", flags.Lookup("datastore-max-idle-conns"))
	util.MustBindEnv("datastore.maxIdleConns", "MERCHANTD_DATASTORE_MAX_IDLE_CONNS", "MERCHANTD_DATASTORE_MAXIDLECONNS")

	flags.Duration("datastore-conn-max-idle-time", defaultConfig.Datastore.ConnMaxIdleTime, "the maximum amount of time a connection to the datastore may be idle")
	util.MustBindPFlag("datastore.connMaxIdleTime", flags.Lookup("datastore-conn-max-idle-time"))
	util.MustBindEnv("datastore.connMaxIdleTime", "MERCHANTD_DATASTORE_CONN_MAX_IDLE_TIME", "MERCHANTD_DATASTORE_CONNMAXIDLETIME")

	flags.Duration("datastore-conn-max-lifetime", defaultConfig.Datastore.ConnMaxLifetime, "the maximum amount of time a connection to the datastore may be reused")
	util.MustBindPFlag("datastore.connMaxLifetime", flags.Lookup("datastore-conn-max-lifetime"))
	util.MustBindEnv("datastore.connMaxLifetime", "MERCHANTD_DATASTORE_CONN_MAX_LIFETIME", "MERCHANTD_DATASTORE_CONNMAXLIFETIME")

	flags.Bool("datastore-metrics-enabled", defaultConfig.Datastore.Metrics.Enabled, "enable/disable sql metrics for the datastore")
	util.MustBindPFlag("datastore.metrics.enabled", flags.Lookup("datastore-metrics-enabled"))
	util.MustBindEnv("datastore.metrics.enabled", "MERCHANTD_DATASTORE_METRICS_ENABLED")

	flags.String("log-format", defaultConfig.Log.Format, "the log format to output logs in")
	util.MustBindPFlag("log.format", flags.Lookup("log-format"))
	util.MustBindEnv("log.format", "MERCHANTD_LOG_FORMAT")

	flags.String("log-level", defaultConfig.Log.Level, "the log level to use")
	util.MustBindPFlag("log.level", flags.Lookup("log-level"))
	util.MustBindEnv("log.level", "MERCHANTD_LOG_LEVEL")

	flags.String("log-timestamp-format", defaultConfig.Log.TimestampFormat, "the timestamp format to use for log messages")
	util.MustBindPFlag("log.timestampFormat", flags.Lookup("log-timestamp-format"))
	util.MustBindEnv("log.timestampFormat", "MERCHANTD_LOG_TIMESTAMP_FORMAT")

	flags.Bool("trace-enabled", defaultConfig.Trace.Enabled, "enable tracing")
	util.MustBindPFlag("trace.enabled", flags.Lookup("trace-enabled"))
	util.MustBindEnv("trace.enabled", "MERCHANTD_TRACE_ENABLED")

	flags.String("trace-otlp-endpoint", defaultConfig.Trace.OTLP.Endpoint, "the endpoint of the trace collector")
	util.MustBindPFlag("trace.otlp.endpoint", flags.Lookup("trace-otlp-endpoint"))
	util.MustBindEnv("trace.otlp.endpoint", "MERCHANTD_TRACE_OTLP_ENDPOINT")

	flags.Bool("trace-otlp-tls-enabled", defaultConfig.Trace.OTLP.TLS.Enabled, "use TLS connection for trace collector")
	util.MustBindPFlag("trace.otlp.tls.enabled", flags.Lookup("trace-otlp-tls-enabled"))
	util.MustBindEnv("trace.otlp.tls.enabled", "MERCHANTD_TRACE_OTLP_TLS_ENABLED")

	flags.Float64("trace-sample-ratio", defaultConfig.Trace.SampleRatio, "the fraction of traces to sample. 1 means all, 0 means none.")
	util.MustBindPFlag("trace.sampleRatio", flags.Lookup("trace-sample-ratio"))
	util.MustBindEnv("trace.sampleRatio", "MERCHANTD_TRACE_SAMPLE_RATIO")

	flags.String("trace-service-name", defaultConfig.Trace.ServiceName, "the service name included in sampled traces")
	util.MustBindPFlag("trace.serviceName", flags.Lookup("trace-service-name"))
	util.MustBindEnv("trace.serviceName", "MERCHANTD_TRACE_SERVICE_NAME")

	flags.Bool("profiler-enabled", defaultConfig.Profiler.Enabled, "enable/disable pprof profiling")
	util.MustBindPFlag("profiler.enabled", flags.Lookup("profiler-enabled"))
	util.MustBindEnv("profiler.enabled", "MERCHANTD_PROFILER_ENABLED")

	flags.String("profiler-addr", defaultConfig.Profiler.Addr, "the host:port address to serve the pprof profiler server on")
	util.MustBindPFlag("profiler.addr", flags.Lookup("profiler-addr"))
	util.MustBindEnv("profiler.addr", "MERCHANTD_PROFILER_ADDRESS")

	flags.Bool("metrics-enabled", defaultConfig.Metrics.Enabled, "enable/disable prometheus metrics on the '/metrics' endpoint")
	util.MustBindPFlag("metrics.enabled", flags.Lookup("metrics-enabled"))
	util.MustBindEnv("metrics.enabled", "MERCHANTD_METRICS_ENABLED")

	flags.String("metrics-addr", defaultConfig.Metrics.Addr, "the host:port address to serve the prometheus metrics server on")
	util.MustBindPFlag("metrics.addr", flags.Lookup("metrics-addr"))
	util.MustBindEnv("metrics.addr", "MERCHANTD_METRICS_ADDR")

	flags.Bool("metrics-enable-request-histograms", defaultConfig.Metrics.EnableRequestHistograms, "enables prometheus histogram metrics for request latency distributions")
	util.MustBindPFlag("metrics.enableRequestHistograms", flags.Lookup("metrics-enable-request-histograms"))
	util.MustBindEnv("metrics.enableRequestHistograms", "MERCHANTD_METRICS_ENABLE_REQUEST_HISTOGRAMS")

	flags.Int("pagination-default-page-size", defaultConfig.Pagination.DefaultPageSize, "the page size served when a list request carries no page_size")
	util.MustBindPFlag("pagination.defaultPageSize", flags.Lookup("pagination-default-page-size"))
	util.MustBindEnv("pagination.defaultPageSize", "MERCHANTD_PAGINATION_DEFAULT_PAGE_SIZE", "MERCHANTD_PAGINATION_DEFAULTPAGESIZE")

	flags.Int("pagination-max-page-size", defaultConfig.Pagination.MaxPageSize, "the clamp ceiling for client-supplied page sizes")
	util.MustBindPFlag("pagination.maxPageSize", flags.Lookup("pagination-max-page-size"))
	util.MustBindEnv("pagination.maxPageSize", "MERCHANTD_PAGINATION_MAX_PAGE_SIZE", "MERCHANTD_PAGINATION_MAXPAGESIZE")

	flags.Int("export-max-records", defaultConfig.Export.MaxRecords, "the maximum number of records served by one export stream")
	util.MustBindPFlag("export.maxRecords", flags.Lookup("export-max-records"))
	util.MustBindEnv("export.maxRecords", "MERCHANTD_EXPORT_MAX_RECORDS", "MERCHANTD_EXPORT_MAXRECORDS")

	flags.Int("export-flush-interval", defaultConfig.Export.FlushInterval, "the number of exported records written between sink flushes")
	util.MustBindPFlag("export.flushInterval", flags.Lookup("export-flush-interval"))
	util.MustBindEnv("export.flushInterval", "MERCHANTD_EXPORT_FLUSH_INTERVAL", "MERCHANTD_EXPORT_FLUSHINTERVAL")

	flags.Int("bulk-batch-size", defaultConfig.Bulk.BatchSize, "the number of matched rows updated per chunk inside a bulk transaction")
	util.MustBindPFlag("bulk.batchSize", flags.Lookup("bulk-batch-size"))
	util.MustBindEnv("bulk.batchSize", "MERCHANTD_BULK_BATCH_SIZE", "MERCHANTD_BULK_BATCHSIZE")

	flags.Int("bulk-max-records-per-request", defaultConfig.Bulk.MaxRecordsPerRequest, "the maximum number of records one bulk request may carry")
	util.MustBindPFlag("bulk.maxRecordsPerRequest", flags.Lookup("bulk-max-records-per-request"))
	util.MustBindEnv("bulk.maxRecordsPerRequest", "MERCHANTD_BULK_MAX_RECORDS_PER_REQUEST", "MERCHANTD_BULK_MAXRECORDSPERREQUEST")

	flags.Bool("ratelimit-enabled", defaultConfig.RateLimit.Enabled, "enable/disable the export rate limiter")
	util.MustBindPFlag("ratelimit.enabled", flags.Lookup("ratelimit-enabled"))
	util.MustBindEnv("ratelimit.enabled", "MERCHANTD_RATELIMIT_ENABLED")

	flags.Int("ratelimit-limit", defaultConfig.RateLimit.Limit, "the number of export requests admitted per window per partition")
	util.MustBindPFlag("ratelimit.limit", flags.Lookup("ratelimit-limit"))
	util.MustBindEnv("ratelimit.limit", "MERCHANTD_RATELIMIT_LIMIT")

	flags.Duration("ratelimit-window", defaultConfig.RateLimit.Window, "the fixed window duration of the export rate limiter")
	util.MustBindPFlag("ratelimit.window", flags.Lookup("ratelimit-window"))
	util.MustBindEnv("ratelimit.window", "MERCHANTD_RATELIMIT_WINDOW")

	flags.Int("ratelimit-max-queue-length", defaultConfig.RateLimit.MaxQueueLength, "the number of over-limit export requests allowed to wait for a future window (0 disables queueing)")
	util.MustBindPFlag("ratelimit.maxQueueLength", flags.Lookup("ratelimit-max-queue-length"))
	util.MustBindEnv("ratelimit.maxQueueLength", "MERCHANTD_RATELIMIT_MAX_QUEUE_LENGTH", "MERCHANTD_RATELIMIT_MAXQUEUELENGTH")

	flags.String("ratelimit-partition-by", defaultConfig.RateLimit.PartitionBy, "the partition key source for the export rate limiter ('user', 'api-key' or 'ip')")
	util.MustBindPFlag("ratelimit.partitionBy", flags.Lookup("ratelimit-partition-by"))
	util.MustBindEnv("ratelimit.partitionBy", "MERCHANTD_RATELIMIT_PARTITION_BY", "MERCHANTD_RATELIMIT_PARTITIONBY")

	flags.Bool("cache-enabled", defaultConfig.Cache.Enabled, "enable/disable the tiered read cache in front of the datastore")
	util.MustBindPFlag("cache.enabled", flags.Lookup("cache-enabled"))
	util.MustBindEnv("cache.enabled", "MERCHANTD_CACHE_ENABLED")

	flags.Duration("cache-local-ttl", defaultConfig.Cache.LocalTTL, "the TTL of the in-process cache tier (cannot exceed the shared TTL)")
	util.MustBindPFlag("cache.localTTL", flags.Lookup("cache-local-ttl"))
	util.MustBindEnv("cache.localTTL", "MERCHANTD_CACHE_LOCAL_TTL", "MERCHANTD_CACHE_LOCALTTL")

	flags.Duration("cache-shared-ttl", defaultConfig.Cache.SharedTTL, "the TTL of the shared cache tier")
	util.MustBindPFlag("cache.sharedTTL", flags.Lookup("cache-shared-ttl"))
	util.MustBindEnv("cache.sharedTTL", "MERCHANTD_CACHE_SHARED_TTL", "MERCHANTD_CACHE_SHAREDTTL")

	flags.Int("cache-max-local-entries", defaultConfig.Cache.MaxLocalEntries, "the capacity of the in-process cache tier")
	util.MustBindPFlag("cache.maxLocalEntries", flags.Lookup("cache-max-local-entries"))
	util.MustBindEnv("cache.maxLocalEntries", "MERCHANTD_CACHE_MAX_LOCAL_ENTRIES", "MERCHANTD_CACHE_MAXLOCALENTRIES")
}
