// Package config loads hermes project settings from hermes.toml or
// hermes.yaml and builds the process logger from them.
//
// Example hermes.toml:
//
//	migrations-location = "versions"
//	log-level = "info"
//	log-to-stream = true
//
//	[clickhouse]
//	host = "localhost"
//	port = 9000
//	database = "default"
//	version = "25.7"
//
//	[tracking]
//	database = "hermes"
//	lock-timeout = "30s"
//	lease-duration = "5m"
//
// The CLICKHOUSE_URI, CLICKHOUSE_HOST, CLICKHOUSE_PORT, CLICKHOUSE_DATABASE,
// CLICKHOUSE_USER and CLICKHOUSE_PASSWORD environment variables override the
// [clickhouse] section.
package config
