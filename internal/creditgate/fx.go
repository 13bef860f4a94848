package creditgate

import "go.uber.org/fx"

var Module = fx.Module("creditgate",
	fx.Provide(New),
)
