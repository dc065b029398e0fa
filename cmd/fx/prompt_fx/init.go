package prompt_fx

import (
	"context"
	"errors"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"wingman/internal/config"
	"wingman/pkg/utils"
)

var Module = fx.Provide(
	ProvideCompletionClient)

// ProvideCompletionClient registers one client per configured provider key.
// Tier models name their provider ("openai:gpt-4o"), so a tier pointing at an
// unconfigured provider fails per request rather than at startup.
func ProvideCompletionClient(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (utils.CompletionClientInterface, error) {
	clients := map[string]utils.CompletionClientInterface{}

	if cfg.AI.OpenAIAPIKey != "" {
		clients["openai"] = utils.NewOpenAICompletionClient(cfg.AI.OpenAIAPIKey)
	}
	if cfg.AI.GeminiAPIKey != "" {
		gemini, err := utils.NewGeminiCompletionClient(context.Background(), cfg.AI.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		clients["gemini"] = gemini
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return gemini.Close()
			},
		})
	}

	if len(clients) == 0 {
		if cfg.IsProduction() {
			return nil, errors.New("no AI provider configured: set ai.openai_api_key or ai.gemini_api_key")
		}
		logger.Warn("no AI provider configured; every analysis will fail and be refunded")
	}

	router := utils.NewCompletionRouter(clients)
	logger.Info("ai providers ready", zap.Strings("providers", router.Providers()))
	return router, nil
}
