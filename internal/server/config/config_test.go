package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestVerifyConfig(t *testing.T) {
	t.Run("default_config_is_valid", func(t *testing.T) {
		cfg := DefaultConfig()

		require.NoError(t, cfg.Verify())
	})

	t.Run("unknown_datastore_engine", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Datastore.Engine = "oracle"

		err := cfg.Verify()
		require.EqualError(t, err, "config 'datastore.engine' must be one of ['memory', 'sqlite', 'postgres', 'mysql']")
	})

	t.Run("failing_to_set_http_cert_path_will_not_allow_server_to_start", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.HTTP.TLS = &TLSConfig{
			Enabled: true,
			KeyPath: "some/path",
		}

		err := cfg.Verify()
		require.EqualError(t, err, "'http.tls.cert' and 'http.tls.key' configs must be set")
	})

	t.Run("failing_to_set_http_key_path_will_not_allow_server_to_start", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.HTTP.TLS = &TLSConfig{
			Enabled:  true,
			CertPath: "some/path",
		}

		err := cfg.Verify()
		require.EqualError(t, err, "'http.tls.cert' and 'http.tls.key' configs must be set")
	})

	t.Run("non_log_format", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Log.Format = "notaformat"

		err := cfg.Verify()
		require.Error(t, err)
	})

	t.Run("non_log_level", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Log.Level = "notalevel"

		err := cfg.Verify()
		require.Error(t, err)
	})

	t.Run("invalid_log_timestamp_format", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Log.TimestampFormat = "notatimestampformat"

		err := cfg.Verify()
		require.Error(t, err)
	})

	t.Run("max_page_size_out_of_range", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Pagination.MaxPageSize = 500

		err := cfg.Verify()
		require.Error(t, err)
	})

	t.Run("non_positive_default_page_size", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Pagination.DefaultPageSize = 0

		err := cfg.Verify()
		require.Error(t, err)
	})

	t.Run("default_page_size_cannot_exceed_max_page_size", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Pagination.DefaultPageSize = 80
		cfg.Pagination.MaxPageSize = 20

		err := cfg.Verify()
		require.EqualError(t, err, "config 'pagination.defaultPageSize' must be in the range [1, 'pagination.maxPageSize' (20)]")
	})

	t.Run("non_positive_export_max_records", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Export.MaxRecords = 0

		err := cfg.Verify()
		require.EqualError(t, err, "config 'export.maxRecords' must be a positive integer")
	})

	t.Run("non_positive_export_flush_interval", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Export.FlushInterval = -1

		err := cfg.Verify()
		require.EqualError(t, err, "config 'export.flushInterval' must be a positive integer")
	})

	t.Run("bulk_batch_size_out_of_range", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Bulk.BatchSize = 0
		require.Error(t, cfg.Verify())

		cfg = DefaultConfig()
		cfg.Bulk.BatchSize = MaxBulkBatchSize + 1
		require.Error(t, cfg.Verify())
	})

	t.Run("non_positive_bulk_max_records_per_request", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Bulk.MaxRecordsPerRequest = 0

		err := cfg.Verify()
		require.Error(t, err)
	})

	t.Run("ratelimit_requires_positive_limit", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.RateLimit.Limit = 0

		err := cfg.Verify()
		require.Error(t, err)
	})

	t.Run("ratelimit_requires_positive_window", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.RateLimit.Window = 0

		err := cfg.Verify()
		require.Error(t, err)
	})

	t.Run("ratelimit_queue_length_cannot_be_negative", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.RateLimit.MaxQueueLength = -1

		err := cfg.Verify()
		require.Error(t, err)
	})

	t.Run("unknown_ratelimit_partition_source", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.RateLimit.PartitionBy = "tenant"

		err := cfg.Verify()
		require.EqualError(t, err, "config 'ratelimit.partitionBy' must be one of ['user', 'api-key', 'ip']")
	})

	t.Run("disabled_ratelimit_skips_validation", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.RateLimit.Enabled = false
		cfg.RateLimit.Limit = 0

		require.NoError(t, cfg.Verify())
	})

	t.Run("local_ttl_cannot_exceed_shared_ttl", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Cache.LocalTTL = 2 * time.Minute
		cfg.Cache.SharedTTL = time.Minute

		err := cfg.Verify()
		require.EqualError(t, err, "config 'cache.localTTL' (2m0s) cannot be larger than 'cache.sharedTTL' config (1m0s)")
	})

	t.Run("non_positive_cache_entries", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Cache.MaxLocalEntries = 0

		err := cfg.Verify()
		require.Error(t, err)
	})

	t.Run("disabled_cache_skips_validation", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Cache.Enabled = false
		cfg.Cache.LocalTTL = 2 * time.Minute
		cfg.Cache.SharedTTL = time.Minute

		require.NoError(t, cfg.Verify())
	})
}

func TestMustDefaultConfigWithRandomPorts(t *testing.T) {
	cfg := MustDefaultConfigWithRandomPorts()

	require.NoError(t, cfg.Verify())
	require.NotEqual(t, cfg.HTTP.Addr, cfg.Metrics.Addr)
}
