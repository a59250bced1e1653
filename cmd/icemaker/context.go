package main

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"icemaker/internal/config"
	"icemaker/internal/geocode"
	"icemaker/internal/logging"
	"icemaker/internal/matcher"
	"icemaker/internal/pipeline"
	"icemaker/internal/promoter"
	"icemaker/internal/push"
	"icemaker/internal/store"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
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
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.NewFromConfig(cfg)
	})
	return c.logger, c.loggerErr
}

// withStore opens the staging/directory store for the duration of fn.
func (c *commandContext) withStore(fn func(*config.Config, *store.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(cfg, st)
}

// withRunner wires the full pipeline (verifier, promoter, pusher) around an
// open store and consumer connection.
func (c *commandContext) withRunner(fn func(*pipeline.Runner, *store.Store) error) error {
	logger, err := c.ensureLogger()
	if err != nil {
		return err
	}
	return c.withStore(func(cfg *config.Config, st *store.Store) error {
		// An empty consumer path disables the push stage and identifier
		// adoption; the staging pipeline still runs.
		var (
			identity promoter.IdentitySource
			pusher   *push.Pusher
		)
		if strings.TrimSpace(cfg.Database.ConsumerPath) != "" {
			consumer, err := push.OpenConsumer(cfg.Database.ConsumerPath)
			if err != nil {
				return err
			}
			defer consumer.Close()
			identity = consumer
			pusher = push.New(st, consumer, logger)
		}

		m := matcher.New(cfg.Matching, logger)
		verifier := geocode.NewVerifier(st, geocode.NewClient(cfg.Geocoder), cfg, logger)
		prom := promoter.New(st, m, identity, logger)
		runner, err := pipeline.NewRunner(cfg, st, verifier, prom, pusher, logger)
		if err != nil {
			return err
		}
		return fn(runner, st)
	})
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
