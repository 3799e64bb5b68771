package clickhouse

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var versionPattern = regexp.MustCompile(`^(\d+)\.(\d+)(?:\.(\d+))?(?:\.(\d+))?`)

// VersionInfo represents a parsed ClickHouse server version.
type VersionInfo struct {
	Major int
	Minor int
	Patch int
	Raw   string
}

// String returns the version as "major.minor.patch".
func (v VersionInfo) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Matches reports whether the server version satisfies an engine version as
// written in configuration, e.g. "25.7" or "24.8.4". Only the components given
// are compared; "latest" and "" match anything.
func (v VersionInfo) Matches(engineVersion string) bool {
	engineVersion = strings.TrimSpace(engineVersion)
	if engineVersion == "" || engineVersion == "latest" {
		return true
	}

	want, err := parseVersion(engineVersion)
	if err != nil {
		return false
	}

	if v.Major != want.Major || v.Minor != want.Minor {
		return false
	}

	return strings.Count(engineVersion, ".") < 2 || v.Patch == want.Patch
}

// GetVersion retrieves and parses the ClickHouse version from the server.
func (c *Client) GetVersion(ctx context.Context) (*VersionInfo, error) {
	var raw string
	if err := c.conn.QueryRow(ctx, "SELECT version()").Scan(&raw); err != nil {
		return nil, errors.Wrap(err, "failed to query ClickHouse version")
	}

	version, err := parseVersion(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse ClickHouse version: %s", raw)
	}

	return version, nil
}

// parseVersion accepts "25.7.1.3", "25.7.1.3-testing", "25.7.1.3 (official build)" and "25.7".
func parseVersion(raw string) (*VersionInfo, error) {
	cleaned := strings.TrimSpace(raw)
	if i := strings.IndexAny(cleaned, " -"); i != -1 {
		cleaned = cleaned[:i]
	}

	m := versionPattern.FindStringSubmatch(cleaned)
	if m == nil {
		return nil, errors.Errorf("invalid version format: %s", raw)
	}

	v := &VersionInfo{Raw: raw}
	v.Major, _ = strconv.Atoi(m[1])
	v.Minor, _ = strconv.Atoi(m[2])
	if m[3] != "" {
		v.Patch, _ = strconv.Atoi(m[3])
	}

	return v, nil
}
