package main

import (
	"context"

	"github.com/odyssey-erp/reqflow/internal/app"
	"github.com/odyssey-erp/reqflow/internal/auth"
)

// commandContext lazily opens what a subcommand needs and closes it afterwards.
type commandContext struct {
	driver     *string
	sqlitePath *string

	cfg    *app.Config
	stores *app.Stores
}

func newCommandContext(driver, sqlitePath *string) *commandContext {
	return &commandContext{driver: driver, sqlitePath: sqlitePath}
}

func (c *commandContext) config() (*app.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, err
	}
	if c.driver != nil && *c.driver != "" {
		cfg.StoreDriver = *c.driver
	}
	if c.sqlitePath != nil && *c.sqlitePath != "" {
		cfg.SQLitePath = *c.sqlitePath
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}

func (c *commandContext) openStores(ctx context.Context) (*app.Stores, error) {
	if c.stores != nil {
		return c.stores, nil
	}
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	stores, err := app.OpenStores(ctx, cfg, nil)
	if err != nil {
		return nil, err
	}
	c.stores = stores
	return stores, nil
}

func (c *commandContext) users(ctx context.Context) (*auth.Service, error) {
	stores, err := c.openStores(ctx)
	if err != nil {
		return nil, err
	}
	return auth.NewService(stores.Users), nil
}

func (c *commandContext) close() {
	if c.stores != nil {
		c.stores.Close()
		c.stores = nil
	}
}
