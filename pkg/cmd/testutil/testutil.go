package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pseudomuto/hermes/pkg/config"
	"github.com/pseudomuto/hermes/pkg/consts"
	"github.com/stretchr/testify/require"
)

// ProjectFixture is a temporary hermes project with a migrations directory.
type ProjectFixture struct {
	Dir    string
	Config *config.Config
	t      *testing.T
}

// TestProject creates an isolated temp directory holding hermes.toml and an
// empty versions directory.
func TestProject(t *testing.T) *ProjectFixture {
	t.Helper()

	dir := t.TempDir()
	p := &ProjectFixture{Dir: dir, Config: config.Defaults(), t: t}
	p.Config.MigrationsLocation = filepath.Join(dir, consts.DefaultMigrationsLocation)
	p.Config.LogToStream = false
	p.Config.LogToFile = false

	require.NoError(t, os.MkdirAll(p.Config.MigrationsLocation, consts.ModeDir))
	require.NoError(t, os.WriteFile(p.ConfigPath(), []byte(fmt.Sprintf(
		"migrations-location = %q\nlog-to-stream = false\nlog-to-file = false\n", p.Config.MigrationsLocation,
	)), consts.ModeFile))

	return p
}

// ConfigPath returns the path of the fixture's hermes.toml.
func (p *ProjectFixture) ConfigPath() string {
	return filepath.Join(p.Dir, consts.ConfigFileTOML)
}

// WithUnit writes a migration unit directory. An empty parent makes it the root.
func (p *ProjectFixture) WithUnit(rev, parent, up, down string) *ProjectFixture {
	p.t.Helper()

	dir := filepath.Join(p.Config.MigrationsLocation, rev+"--"+strings.ReplaceAll(strings.ToLower(rev), "_", "-"))
	require.NoError(p.t, os.MkdirAll(dir, consts.ModeDir))

	info := fmt.Sprintf("version = %q\nmessage = %q\ncreation_date = \"2024-06-01T12:00:00\"\n", rev, "unit "+rev)
	if parent != "" {
		info += fmt.Sprintf("previous_version = %q\n", parent)
	}

	require.NoError(p.t, os.WriteFile(filepath.Join(dir, "info.toml"), []byte(info), consts.ModeFile))
	require.NoError(p.t, os.WriteFile(filepath.Join(dir, consts.UpgradeScript), []byte(up), consts.ModeFile))
	require.NoError(p.t, os.WriteFile(filepath.Join(dir, consts.DowngradeScript), []byte(down), consts.ModeFile))

	return p
}

// WithChain writes a linear chain of units named by revs, each creating and
// dropping a table of the same name in the default database.
func (p *ProjectFixture) WithChain(revs ...string) *ProjectFixture {
	p.t.Helper()

	parent := ""
	for _, rev := range revs {
		p.WithUnit(rev, parent,
			fmt.Sprintf("CREATE TABLE default.t_%s (id UInt64) ENGINE = MergeTree ORDER BY id;", rev),
			fmt.Sprintf("DROP TABLE default.t_%s;", rev),
		)
		parent = rev
	}

	return p
}
