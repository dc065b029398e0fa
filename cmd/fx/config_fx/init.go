package config_fx

import (
	"go.uber.org/fx"

	"wingman/internal/config"
	"wingman/pkg/utils"
)

var Module = fx.Provide(
	config.Load,
	provideClock)

func provideClock() utils.Clock {
	return utils.SystemClock
}
