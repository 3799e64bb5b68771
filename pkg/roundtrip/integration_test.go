package roundtrip_test

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/pseudomuto/hermes/pkg/clickhouse"
	"github.com/pseudomuto/hermes/pkg/docker"
	"github.com/pseudomuto/hermes/pkg/roundtrip"
	"github.com/stretchr/testify/require"
)

func TestHarness_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	if err := exec.Command("docker", "ps").Run(); err != nil {
		t.Skip("Docker daemon not running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	migrations := units(
		unit("a1", "",
			"CREATE DATABASE analytics ENGINE = Atomic;\nCREATE TABLE analytics.users (id UInt64, name String) ENGINE = MergeTree ORDER BY id;",
			"DROP TABLE analytics.users;\nDROP DATABASE analytics;",
		),
		unit("b2", "a1",
			"ALTER TABLE analytics.users ADD COLUMN email String DEFAULT '';",
			"ALTER TABLE analytics.users DROP COLUMN email;",
		),
	)

	h := roundtrip.New(roundtrip.Config{
		Migrations: migrations,
		Provision: func(ctx context.Context, version string) (roundtrip.Target, error) {
			c, err := docker.Provision(ctx, docker.Options{Version: version})
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		Connect: func(ctx context.Context, dsn string) (roundtrip.Session, error) {
			c, err := clickhouse.NewClient(ctx, dsn)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		Logger: discard,
	})

	report, err := h.Run(ctx, "25.7")
	require.NoError(t, err)
	require.True(t, report.Passed(), "%v", report.Failures)
	require.NoError(t, report.FingerprintErr)
	require.Equal(t, report.FingerprintBefore.Hash, report.FingerprintAfter.Hash)
}
