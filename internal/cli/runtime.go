package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/ppiankov/trendbrief/internal/briefing"
	"github.com/ppiankov/trendbrief/internal/dispatch"
	"github.com/ppiankov/trendbrief/internal/feed"
	"github.com/ppiankov/trendbrief/internal/llm"
	"github.com/ppiankov/trendbrief/internal/logging"
	"github.com/ppiankov/trendbrief/internal/model"
	"github.com/ppiankov/trendbrief/internal/util"
	"github.com/ppiankov/trendbrief/internal/validate"
	"github.com/ppiankov/trendbrief/internal/worker"
)

// envKeys are the settings that can come from TRENDBRIEF_* variables without a config file entry
var envKeys = []string{
	"server.addr",
	"llm.provider",
	"llm.model",
	"llm.api_key",
	"llm.base_url",
	"store.dsn",
	"logging.level",
	"logging.format",
	"http.http_proxy",
	"http.https_proxy",
	"http.no_proxy",
}

// loadConfig merges defaults, the config file and the environment, then validates the result
func loadConfig(v *viper.Viper, getenv func(string) string) (*model.Config, error) {
	cfg := model.DefaultConfig()

	// Lists replace the defaults rather than merging element by element
	if v.IsSet("sources") {
		cfg.Sources = nil
	}
	if v.IsSet("dispatch.targets") {
		cfg.Dispatch.Targets = nil
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	applyEnvSecrets(cfg, getenv)
	if v.GetBool("verbose") {
		cfg.Logging.Level = "debug"
	}

	if err := validate.Config(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvSecrets fills provider credentials from the conventional variables
func applyEnvSecrets(cfg *model.Config, getenv func(string) string) {
	provider := strings.ToLower(cfg.LLM.Provider)
	if cfg.LLM.APIKey == "" {
		switch provider {
		case "openai":
			cfg.LLM.APIKey = getenv("OPENAI_API_KEY")
		case "anthropic", "claude":
			cfg.LLM.APIKey = getenv("ANTHROPIC_API_KEY")
		case "gemini", "google":
			cfg.LLM.APIKey = getenv("GEMINI_API_KEY")
		}
	}
	if provider == "ollama" && cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = getenv("OLLAMA_BASE_URL")
	}
}

func currentConfig() (*model.Config, error) {
	return loadConfig(viper.GetViper(), os.Getenv)
}

func newLogger(cfg *model.Config) *slog.Logger {
	return logging.New(cfg.Logging.Level, cfg.Logging.Format)
}

// buildService wires every adapter the briefing service runs on. cleanup releases
// the archive pool and the model client.
func buildService(ctx context.Context, cfg *model.Config, logger *slog.Logger) (*briefing.Service, func(), error) {
	registry, closeFeeds, err := feed.Build(ctx, cfg, logger)
	if err != nil {
		return nil, func() {}, fmt.Errorf("build feeds: %w", err)
	}

	backend, err := llm.NewBackend(ctx, llm.ConfigFromModel(cfg.LLM, cfg.HTTP), logger)
	if err != nil {
		closeFeeds()
		return nil, func() {}, err
	}
	cleanup := closeFeeds
	if closer, ok := backend.(io.Closer); ok {
		cleanup = func() {
			_ = closer.Close()
			closeFeeds()
		}
	}
	if backend == nil {
		logger.Warn("no llm provider configured; briefings with matches will fail")
	}

	client := &http.Client{Transport: util.NewTransport(cfg.HTTP.HTTPProxy, cfg.HTTP.HTTPSProxy, cfg.HTTP.NoProxy)}
	svc, err := briefing.New(cfg, briefing.Deps{
		Fetcher:    registry,
		Gate:       worker.NewGate(cfg.Concurrency.MaxOutboundFetches),
		Backend:    backend,
		Dispatcher: dispatch.New(cfg.Dispatch, client, logger),
	}, logger)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	return svc, cleanup, nil
}
