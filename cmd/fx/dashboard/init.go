package dashboard

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	"wingman/internal/repositories"
	"wingman/internal/services"
	"wingman/pkg/utils"
)

var Module = fx.Provide(
	provideDashboardRepo, provideDashboardService,
)

func provideDashboardRepo(db *gorm.DB) repositories.DashboardRepository {
	return repositories.NewDashboardRepository(db)
}

func provideDashboardService(dashboardRepo repositories.DashboardRepository, clock utils.Clock) services.DashboardService {
	return services.NewDashboardService(dashboardRepo, clock)
}
