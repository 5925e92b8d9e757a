// Command twitvid resolves and downloads Twitter/X videos, serves the HTTP
// API and works with image short codes.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ytget/twitvid/internal/config"
	"github.com/ytget/twitvid/internal/logger"
)

// Build information, set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const (
	metaConfig    = "config"
	metaLogCloser = "logCloser"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "twitvid",
		Usage:   "Twitter/X video downloader and image short links",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file",
				EnvVars: []string{"TWITVID_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: trace, debug, info, warn, error",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			resolveCommand(),
			downloadCommand(),
			encodeCommand(),
			decodeCommand(),
			tokenCommand(),
		},
		Before: setup,
		After: func(c *cli.Context) error {
			if closer, ok := c.App.Metadata[metaLogCloser].(io.Closer); ok {
				return closer.Close()
			}
			return nil
		},
	}
}

// setup loads the configuration and installs the global logger.
func setup(c *cli.Context) error {
	opts := []config.Option{config.WithFile(c.String("config"))}
	if lvl := c.String("log-level"); lvl != "" {
		opts = append(opts, config.WithOverrides(map[string]any{"log.level": lvl}))
	}
	cfg, err := config.NewLoader(opts...).Load()
	if err != nil {
		return err
	}
	lg, closer, err := cfg.Log.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	logger.SetGlobalLogger(lg)

	if c.App.Metadata == nil {
		c.App.Metadata = map[string]any{}
	}
	c.App.Metadata[metaConfig] = cfg
	c.App.Metadata[metaLogCloser] = closer
	return nil
}

func appConfig(c *cli.Context) *config.Config {
	if cfg, ok := c.App.Metadata[metaConfig].(*config.Config); ok {
		return cfg
	}
	return config.Default()
}
