package controllers_fx

import (
	"go.uber.org/fx"

	"wingman/internal/api/controllers"
)

var Module = fx.Options(
	fx.Provide(controllers.NewAccountController),
	fx.Provide(controllers.NewAnalysisController),
	fx.Provide(controllers.NewDashboardController))
