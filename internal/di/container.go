// Package di provides dependency injection configuration for the curator.
package di

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/testimonials/internal/config"
	"github.com/listenupapp/testimonials/internal/di/providers"
	"github.com/listenupapp/testimonials/internal/logger"
	"github.com/listenupapp/testimonials/internal/rules"
)

// NewContainer creates and configures the DI container with all providers.
// Overrides carry the command-line values the config provider layers over the environment.
func NewContainer(overrides config.Overrides) *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.ProvideValue(injector, overrides)
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideRules)

	// Database layer
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideLedger)

	// Storage layer
	do.Provide(injector, providers.ProvideAvatarStorage)
	do.Provide(injector, providers.ProvideAvatarResolver)

	// Curation services
	do.Provide(injector, providers.ProvidePipeline)
	do.Provide(injector, providers.ProvideExporter)

	return injector
}

// Bootstrap initializes the core services so configuration and rule errors surface before
// any command does work. Everything else stays lazy.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*logger.Logger](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*rules.Set](injector); err != nil {
		return err
	}
	return nil
}
