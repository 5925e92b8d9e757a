package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/ytget/twitvid"
	"github.com/ytget/twitvid/client"
	"github.com/ytget/twitvid/internal/cache"
	"github.com/ytget/twitvid/internal/config"
	"github.com/ytget/twitvid/twitter/links"
)

// newFacade builds a twitvid.Downloader from the resolver section.
func newFacade(cfg *config.Config) (*twitvid.Downloader, cache.Cache, error) {
	rc := cfg.Resolver
	httpClient := client.NewWith(client.Config{Timeout: rc.Timeout, Retries: rc.Retries, UserAgent: rc.UserAgent, ProxyURL: rc.ProxyURL})
	d := twitvid.New().WithHTTPClient(httpClient.HTTPClient).WithProvider(rc.Provider)
	if rc.Provider == config.ProviderScript {
		d = d.WithScript(rc.ScriptEngine, rc.Script)
	}
	if rc.Endpoint != "" {
		d = d.WithEndpoint(rc.Endpoint)
	}
	c, err := cache.Open(rc.Cache, rc.CacheDir)
	if err != nil {
		return nil, nil, err
	}
	if c != nil {
		d = d.WithCache(c, rc.CacheTTL)
	}
	return d, c, nil
}

func closeCache(c cache.Cache) {
	if c != nil {
		_ = c.Close()
	}
}

func resolveCommand() *cli.Command {
	return &cli.Command{
		Name:      "resolve",
		Usage:     "Print the media links of a post as JSON",
		ArgsUsage: "<url>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("resolve requires exactly one url", 2)
			}
			d, cc, err := newFacade(appConfig(c))
			if err != nil {
				return err
			}
			defer closeCache(cc)

			info, err := d.Resolve(c.Context, strings.TrimSpace(c.Args().First()))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			enc := json.NewEncoder(c.App.Writer)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		},
	}
}

func downloadCommand() *cli.Command {
	return &cli.Command{
		Name:      "download",
		Usage:     "Download the video of a post",
		ArgsUsage: "<url>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "quality", Aliases: []string{"q"}, Usage: "hd, sd, audio or best"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output path (file or directory)"},
			&cli.StringFlag{Name: "rate-limit", Usage: "Download rate limit (e.g., 2MiB/s, 500KiB/s)"},
			&cli.BoolFlag{Name: "no-progress", Usage: "Disable progress output"},
			&cli.BoolFlag{Name: "name-from-text", Usage: "Name the file after the post text"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("download requires exactly one url", 2)
			}
			cfg := appConfig(c)

			qs := c.String("quality")
			if qs == "" {
				qs = cfg.Download.Quality
			}
			quality, err := links.ParseQuality(qs)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			output := c.String("output")
			if output == "" && cfg.Download.OutputDir != "." {
				output = cfg.Download.OutputDir
				if err := os.MkdirAll(output, 0o755); err != nil {
					return err
				}
			}
			bps := cfg.Download.RateLimit
			if s := c.String("rate-limit"); s != "" {
				bps = parseRate(s)
			}

			d, cc, err := newFacade(cfg)
			if err != nil {
				return err
			}
			defer closeCache(cc)
			d = d.WithQuality(quality).WithOutputPath(output).WithRateLimit(bps).WithNameFromText(c.Bool("name-from-text"))
			if !c.Bool("no-progress") {
				d = d.WithProgress(func(p twitvid.Progress) {
					if p.TotalSize > 0 {
						_, _ = fmt.Fprintf(c.App.Writer, "Downloaded %.1f%%\r", p.Percent)
					}
				})
			}

			res, err := d.Download(c.Context, strings.TrimSpace(c.Args().First()))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			_, _ = fmt.Fprintf(c.App.Writer, "\nSaved %s (%s)\n", res.Path, res.Quality)
			return nil
		},
	}
}
