// Package cmd provides the CLI commands for hermes.
//
// Commands are plain functions returning a *cli.Command, registered with fx
// through the "commands" group and executed by Run.
//
// # Available Commands
//
//   - migrate (apply): move to any target, upgrading or downgrading as needed
//   - upgrade: move forward to a target (default: head)
//   - downgrade: move backward to a target
//   - plan: print the steps a migrate would run
//   - status: show the applied revision, pending units and history
//   - roundtrip: upgrade and downgrade on disposable servers
//
// # Global Options
//
//   - --config, -c: config file (default: hermes.toml or hermes.yaml in the working directory)
//   - --url, -u: ClickHouse DSN, also read from CLICKHOUSE_URI
//
// # Example Usage
//
//	hermes status
//	hermes plan head
//	hermes upgrade
//	hermes downgrade base
//	hermes roundtrip --clickhouse-version 24.8 --clickhouse-version 25.7
package cmd
