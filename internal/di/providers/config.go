// Package providers contains dependency injection providers for the curator.
package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/testimonials/internal/config"
	"github.com/listenupapp/testimonials/internal/logger"
	"github.com/listenupapp/testimonials/internal/rules"
)

// ProvideConfig provides the application configuration.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	overrides := do.MustInvoke[config.Overrides](i)
	return config.Load(overrides)
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.Logger.Level == "debug",
		Environment: cfg.App.Environment,
	})

	log.Debug("configuration loaded",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"data_path", cfg.Storage.DataPath,
		"rules_path", cfg.Rules.Path,
	)

	return log, nil
}

// ProvideRules provides the curation rule tables, from RULES_PATH or the embedded defaults.
func ProvideRules(i do.Injector) (*rules.Set, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	set, err := rules.Load(cfg.Rules.Path)
	if err != nil {
		return nil, err
	}

	log.Debug("rules loaded", "version", set.Version, "path", cfg.Rules.Path)
	return set, nil
}
