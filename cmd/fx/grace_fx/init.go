package grace_fx

import (
	"context"

	"go.uber.org/fx"

	"finmodel/internal/services"
)

var Module = fx.Options(
	fx.Provide(services.NewGraceEnforcer),
	fx.Invoke(startGraceEnforcer),
)

func startGraceEnforcer(lc fx.Lifecycle, enforcer *services.GraceEnforcer) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				enforcer.Run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}
