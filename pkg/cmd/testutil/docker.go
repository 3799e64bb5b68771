package testutil

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/pseudomuto/hermes/pkg/docker"
	"github.com/stretchr/testify/require"
)

// SkipIfNoDocker skips the test in short mode or when Docker is not available.
func SkipIfNoDocker(t *testing.T) {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("Docker not available")
	}

	cmd := exec.CommandContext(t.Context(), "docker", "ps")
	if err := cmd.Run(); err != nil {
		t.Skip("Docker daemon not running")
	}
}

// StartClickHouseContainer starts a ClickHouse server for the duration of the
// test and returns its DSN.
func StartClickHouseContainer(t *testing.T, version string) string {
	t.Helper()

	SkipIfNoDocker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	container, err := docker.Provision(ctx, docker.Options{Version: version})
	require.NoError(t, err, "Failed to start ClickHouse container")

	t.Cleanup(func() {
		_ = container.Stop(context.Background())
	})

	dsn, err := container.DSN(ctx)
	require.NoError(t, err, "Failed to get container DSN")

	return dsn
}
