package main

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/Music-Vine/conductor/internal/app"
	"github.com/Music-Vine/conductor/pkg/config"
	"github.com/Music-Vine/conductor/pkg/logger"
)

type commandContext struct {
	load    func() (*config.Config, error)
	verbose *bool

	appOnce sync.Once
	app     *app.App
	appErr  error
}

func newCommandContext(load func() (*config.Config, error), verbose *bool) *commandContext {
	return &commandContext{load: load, verbose: verbose}
}

// ensureApp wires the services once per invocation. Commands share it.
func (c *commandContext) ensureApp(ctx context.Context) (*app.App, error) {
	c.appOnce.Do(func() {
		cfg, err := c.load()
		if err != nil {
			c.appErr = err
			return
		}

		logr := zap.NewNop()
		if c.verbose != nil && *c.verbose {
			if logr, err = logger.New(cfg); err != nil {
				c.appErr = err
				return
			}
		}

		c.app, c.appErr = app.Build(ctx, cfg, logr)
	})
	return c.app, c.appErr
}

func (c *commandContext) close() {
	if c.app != nil {
		_ = c.app.Logger.Sync()
		c.app.Close()
	}
}
