// Package clickhouse wraps the ClickHouse native driver for hermes.
//
// The Client runs migration statements one at a time, backs the applied-state
// store's tracking tables and captures schema fingerprints for round-trip
// checks. DSNs may be "host:port" addresses or clickhouse:// URLs, and mTLS is
// available through TLSSettings.
//
// Example usage:
//
//	client, err := clickhouse.NewClient(ctx, "clickhouse://default:@localhost:9000/default")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	version, err := client.GetVersion(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println("connected to ClickHouse", version)
package clickhouse
