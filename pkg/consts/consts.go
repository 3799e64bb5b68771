package consts

import (
	"os"
	"time"
)

const (
	// ModeDir is the standard file mode for creating directories
	ModeDir = os.FileMode(0o755)

	// ModeFile is the standard file mode for creating files
	ModeFile = os.FileMode(0o644)

	// ConfigFileTOML and ConfigFileYAML are the config files looked up in the working directory.
	ConfigFileTOML = "hermes.toml"
	ConfigFileYAML = "hermes.yaml"

	// DefaultMigrationsLocation is the directory holding one sub-directory per migration unit.
	DefaultMigrationsLocation = "versions"

	// DefaultLogFilePath is used when log-to-file is enabled without a path.
	DefaultLogFilePath = "hermes.log"

	// DefaultLogLevel is the log level used when none is configured.
	DefaultLogLevel = "info"

	// DefaultClickHouseVersion is the engine version used for disposable round-trip targets.
	DefaultClickHouseVersion = "25.7"

	// DefaultTrackingDatabase holds the applied-state and lease tables.
	DefaultTrackingDatabase = "hermes"

	// DefaultLockTimeout bounds how long an invocation waits for another holder's lease.
	DefaultLockTimeout = 30 * time.Second

	// DefaultLeaseDuration is how long a lease stays live without renewal.
	DefaultLeaseDuration = 5 * time.Minute

	// DefaultMetricsJob is the Pushgateway job name.
	DefaultMetricsJob = "hermes"

	// TargetHead and TargetBase are the reserved symbolic targets.
	TargetHead = "head"
	TargetBase = "base"

	// UpgradeScript and DowngradeScript are the script files of a migration unit.
	UpgradeScript   = "upgrade.sql"
	DowngradeScript = "downgrade.sql"
)
