package organization

import "go.uber.org/fx"

var Module = fx.Module("organization",
	fx.Provide(NewRegistry),
)
