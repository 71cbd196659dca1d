package main

import (
	"strings"
	"sync"

	"cytopipe/internal/config"
)

// commandContext carries the global flag values and the lazily-loaded
// application config shared by every subcommand.
type commandContext struct {
	configFlag *string
	sampleFlag *string
	debugFlag  *bool
	forceFlag  *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, sampleFlag *string, debugFlag, forceFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		sampleFlag: sampleFlag,
		debugFlag:  debugFlag,
		forceFlag:  forceFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.debug() {
			cfg.Logging.Level = "debug"
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) sample() string {
	if c.sampleFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.sampleFlag)
}

func (c *commandContext) debug() bool {
	return c.debugFlag != nil && *c.debugFlag
}

func (c *commandContext) force() bool {
	return c.forceFlag != nil && *c.forceFlag
}
