package config

import "go.uber.org/fx"

// Module provides the process *Config, starting out as Defaults(). The CLI's
// root command replaces its contents once flags are parsed, so an explicit
// --config never depends on discovering a file in the working directory.
var Module = fx.Module("config", fx.Provide(Defaults))
