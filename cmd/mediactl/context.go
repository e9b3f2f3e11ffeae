package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cuongbtq/media-fetcher/internal/config"
	"github.com/cuongbtq/media-fetcher/internal/converter"
	"github.com/cuongbtq/media-fetcher/internal/converter/domain"
	"github.com/cuongbtq/media-fetcher/internal/converter/process"
	"github.com/cuongbtq/media-fetcher/internal/converter/provision"
	"github.com/cuongbtq/media-fetcher/shared/logger"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "configs/api-service/config.yaml"

type commandContext struct {
	configFlag *string
	verbose    *bool

	configOnce sync.Once
	config     *config.Config
	logger     *logger.Logger
	configErr  error
}

func newCommandContext(configFlag *string, verbose *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		verbose:    verbose,
	}
}

func (c *commandContext) configPath() string {
	if c.configFlag != nil {
		if path := strings.TrimSpace(*c.configFlag); path != "" {
			return path
		}
	}
	if path := strings.TrimSpace(os.Getenv("MEDIACTL_CONFIG_PATH")); path != "" {
		return path
	}
	return defaultConfigPath
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.ValidateConverterConfig(); err != nil {
			c.configErr = fmt.Errorf("invalid config: %w", err)
			return
		}

		level := "warn"
		if c.verbose != nil && *c.verbose {
			level = "debug"
		}
		// stdout is reserved for command output
		appLogger, err := logger.New(&logger.Config{
			Level:      level,
			Format:     "console",
			Output:     "stderr",
			TimeFormat: time.TimeOnly,
		})
		if err != nil {
			c.configErr = err
			return
		}

		c.config = cfg
		c.logger = appLogger
	})
	return c.config, c.configErr
}

func (c *commandContext) log() *slog.Logger {
	if c.logger == nil {
		return logger.NewDefault().Logger
	}
	return c.logger.Logger
}

func (c *commandContext) provisioner() (*provision.Provisioner, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return provision.New(provision.Config{
		Path:           cfg.Converter.ExecutablePath,
		DownloadURL:    cfg.Converter.DownloadURL,
		MinSizeBytes:   cfg.Converter.MinSizeBytes,
		MaxRedirects:   cfg.Converter.MaxRedirects,
		Timeout:        cfg.Converter.DownloadTimeout,
		ExpectedSHA256: cfg.Converter.ExpectedSHA256,
	}, c.log())
}

// service builds an orchestrator. An empty mode keeps the configured one.
func (c *commandContext) service(mode string) (*converter.Service, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(mode) == "" {
		mode = cfg.Converter.DeliveryMode
	}
	deliveryMode, err := domain.ParseDeliveryMode(mode)
	if err != nil {
		return nil, err
	}

	prov, err := c.provisioner()
	if err != nil {
		return nil, err
	}

	runner := process.NewRunner(process.Config{
		StderrLines: cfg.Converter.StderrLines,
		KillGrace:   cfg.Converter.KillGracePeriod,
	}, c.log())

	return converter.NewService(converter.Config{
		WorkDir:    cfg.Converter.WorkDir,
		Mode:       deliveryMode,
		JobTimeout: cfg.Converter.JobTimeout,
	}, prov, runner, nil, c.log()), nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
