// Package docker runs disposable ClickHouse servers for round-trip runs.
//
// Containers are started through testcontainers' ClickHouse module using the
// clickhouse/clickhouse-server:<version>-alpine image, so any engine version
// published on Docker Hub can be targeted. An optional config.d directory is
// bind mounted for settings such as macros or cluster definitions.
//
// Example usage:
//
//	container, err := docker.Provision(ctx, docker.Options{
//		Version:   "25.7",
//		ConfigDir: "db/config.d",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer container.Stop(ctx)
//
//	dsn, err := container.DSN(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	client, err := clickhouse.NewClient(ctx, dsn)
package docker
