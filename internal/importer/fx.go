package importer

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("importer",
	fx.Provide(New),
	fx.Invoke(run),
)

func run(lc fx.Lifecycle, i *Importer) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				i.Run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
