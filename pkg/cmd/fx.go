package cmd

import "go.uber.org/fx"

var Module = fx.Module("cli",
	fx.Provide(
		NewExecution,
		func() Connector { return connectClickHouse },
		func() HarnessFactory { return newHarness },
		fx.Annotate(initCmd, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(migrate, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(upgrade, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(downgrade, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(planCmd, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(status, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(roundtripCmd, fx.ResultTags(`group:"commands"`)),
	),
	fx.Invoke(Run),
)
