// Package roundtrip checks that a migration chain upgrades and downgrades
// cleanly on a disposable ClickHouse server.
//
// For every engine version the harness provisions a fresh server, records a
// schema fingerprint, upgrades to head, downgrades to base and fingerprints
// again. Script failures in either direction and schema divergence between
// the two fingerprints are reported as separate failure kinds. Fingerprinting
// is best effort: when it cannot be taken no divergence is claimed.
//
// Example usage:
//
//	h := roundtrip.New(roundtrip.Config{
//		Migrations: os.DirFS("versions"),
//		Provision: func(ctx context.Context, version string) (roundtrip.Target, error) {
//			return docker.Provision(ctx, docker.Options{Version: version})
//		},
//		Connect: func(ctx context.Context, dsn string) (roundtrip.Session, error) {
//			return clickhouse.NewClient(ctx, dsn)
//		},
//	})
//
//	reports, err := h.RunAll(ctx, []string{"24.8", "25.7"})
package roundtrip
