package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"wingman/cmd/fx/account_fx"
	"wingman/cmd/fx/analysis_fx"
	"wingman/cmd/fx/config_fx"
	"wingman/cmd/fx/controllers_fx"
	"wingman/cmd/fx/dashboard"
	"wingman/cmd/fx/db_fx"
	"wingman/cmd/fx/logger_fx"
	"wingman/cmd/fx/metrics_fx"
	"wingman/cmd/fx/prompt_fx"
	"wingman/cmd/fx/queue_fx"
	"wingman/internal/api/controllers"
	"wingman/internal/config"
	"wingman/pkg/middleware"
	"wingman/pkg/utils"
)

func main() {
	app := fx.New(
		config_fx.Module,
		logger_fx.Module,
		db_fx.Module,
		metrics_fx.Module,
		queue_fx.Module,
		prompt_fx.Module,
		account_fx.Module,
		analysis_fx.Module,
		dashboard.Module,
		controllers_fx.Module,

		fx.Provide(ProvideRouter),
		fx.Invoke(StartServer),
	)

	app.Run()
}

func StartServer(lc fx.Lifecycle, cfg *config.Config, engine *gin.Engine, logger *zap.Logger) {
	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.HTTP.Port),
		Handler: engine,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			logger.Info("starting HTTP server", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Fatal("HTTP server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, cfg.HTTP.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

func ProvideRouter(
	cfg *config.Config,
	logger *zap.Logger,
	registry *prometheus.Registry,
	tokens *utils.TokenIssuer,
	accountController *controllers.AccountController,
	analysisController *controllers.AnalysisController,
	dashboardController *controllers.DashboardController) *gin.Engine {

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.TraceIDMiddleware())
	r.Use(middleware.RequestLogger(logger))
	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware())

	RegisterRoutes(r, registry, tokens, accountController, analysisController, dashboardController)

	return r
}

func RegisterRoutes(r *gin.Engine,
	registry *prometheus.Registry,
	tokens *utils.TokenIssuer,
	accountController *controllers.AccountController,
	analysisController *controllers.AnalysisController,
	dashboardController *controllers.DashboardController) {

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	auth := middleware.JWTAuthMiddleware(tokens)

	accountsGroup := r.Group("/accounts")
	accountsGroup.POST("/register", accountController.Register)
	accountsGroup.POST("/login", accountController.Login)

	meGroup := accountsGroup.Group("/me", auth)
	meGroup.GET("", accountController.Me)
	meGroup.DELETE("", accountController.Deactivate)
	meGroup.GET("/ledger", accountController.Ledger)
	meGroup.PUT("/tier", accountController.ChangeTier)

	adminGroup := r.Group("/admin", auth, middleware.RoleMiddleware("admin"))
	adminGroup.POST("/accounts/:id/purchases", accountController.Purchase)
	adminGroup.GET("/dashboard", dashboardController.GetDashboard)

	analysesGroup := r.Group("/analyses", auth)
	analysesGroup.POST("", analysisController.Submit)
	analysesGroup.POST("/quote", analysisController.Quote)
	analysesGroup.GET("/:id", analysisController.Get)
}
