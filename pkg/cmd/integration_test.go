package cmd

import (
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/pseudomuto/hermes/pkg/clickhouse"
	"github.com/pseudomuto/hermes/pkg/cmd/testutil"
	"github.com/pseudomuto/hermes/pkg/consts"
	"github.com/stretchr/testify/require"
)

func TestCommandsAgainstClickHouse(t *testing.T) {
	dsn := testutil.StartClickHouseContainer(t, consts.DefaultClickHouseVersion)

	project := testutil.TestProject(t).WithChain("A", "B")
	project.Config.ClickHouse.URL = dsn

	p := commandParams{
		Config:  project.Config,
		Connect: connectClickHouse,
		Version: &Version{Version: "integration"},
	}

	out, err := testutil.RunCommand(t, upgrade(p))
	require.NoError(t, err)
	require.Contains(t, out, "Migrated <base> -> B (2 steps")

	out, err = testutil.RunCommand(t, status(p))
	require.NoError(t, err)
	require.Contains(t, out, "Current revision: B")
	require.Contains(t, out, "Up to date.")

	ctx := context.Background()
	client, err := clickhouse.NewClient(ctx, dsn)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	fp, err := client.SchemaFingerprint(ctx, consts.DefaultTrackingDatabase)
	require.NoError(t, err)
	require.True(t, slices.ContainsFunc(fp.Objects, func(o string) bool {
		return strings.HasPrefix(o, "table default.t_B ")
	}))

	out, err = testutil.RunCommand(t, downgrade(p), "base")
	require.NoError(t, err)
	require.Contains(t, out, "Migrated B -> <base> (2 steps")
}
