package main

import (
	"sync"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/listenupapp/testimonials/internal/config"
	"github.com/listenupapp/testimonials/internal/di"
	"github.com/listenupapp/testimonials/internal/logger"
)

// commandContext builds the DI container on first use so flags parsed by cobra reach config.
type commandContext struct {
	overrides config.Overrides

	once         sync.Once
	shutdownOnce sync.Once
	injector     *do.RootScope
	bootError    error
}

func newCommandContext() *commandContext {
	return &commandContext{}
}

func (c *commandContext) container() (*do.RootScope, error) {
	c.once.Do(func() {
		c.injector = di.NewContainer(c.overrides)
		c.bootError = di.Bootstrap(c.injector)
	})
	return c.injector, c.bootError
}

// shutdown closes every service the container created. Safe to call when nothing was built.
func (c *commandContext) shutdown() {
	if c.injector == nil {
		return
	}
	c.shutdownOnce.Do(func() {
		log, logErr := do.Invoke[*logger.Logger](c.injector)
		if rep := c.injector.Shutdown(); rep != nil && !rep.Succeed && logErr == nil {
			log.Error("shutdown error", "error", rep)
		}
	})
}

// run wraps a command body so the container is shut down however the command ends.
func (c *commandContext) run(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		defer c.shutdown()
		return fn(cmd, args)
	}
}

// invoke resolves a service from the container.
func invoke[T any](c *commandContext) (T, error) {
	injector, err := c.container()
	if err != nil {
		var zero T
		return zero, err
	}
	return do.Invoke[T](injector)
}
