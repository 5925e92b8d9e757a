package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/ytget/twitvid/client"
	"github.com/ytget/twitvid/downloader"
	"github.com/ytget/twitvid/internal/cache"
	"github.com/ytget/twitvid/internal/config"
	"github.com/ytget/twitvid/internal/logger"
	"github.com/ytget/twitvid/internal/metrics"
	"github.com/ytget/twitvid/server"
	"github.com/ytget/twitvid/shortcode"
	"github.com/ytget/twitvid/store"
	"github.com/ytget/twitvid/twitter/resolver"
	"github.com/ytget/twitvid/twitter/script"
	"github.com/ytget/twitvid/upload"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "address", Aliases: []string{"a"}, Usage: "Listen address, overrides server.address"},
		},
		Action: func(c *cli.Context) error {
			cfg := appConfig(c)
			if addr := c.String("address"); addr != "" {
				cfg.Server.Address = addr
			}
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}
}

// runServer wires every component from cfg and serves until ctx is done.
func runServer(ctx context.Context, cfg *config.Config) (err error) {
	log := logger.WithComponent(logger.ComponentApp)
	m := metrics.New()

	rc := cfg.Resolver
	httpClient := client.NewWith(client.Config{Timeout: rc.Timeout, Retries: rc.Retries, UserAgent: rc.UserAgent, ProxyURL: rc.ProxyURL})

	resolveCache, err := cache.Open(rc.Cache, rc.CacheDir)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	if resolveCache != nil {
		defer resolveCache.Close()
	}

	opts := resolver.Options{
		Provider: rc.Provider,
		Endpoint: rc.Endpoint,
		Cache:    resolveCache,
		CacheTTL: rc.CacheTTL,
		Metrics:  m,
	}
	if rc.Provider == config.ProviderScript {
		mapper, err := script.New(rc.ScriptEngine, rc.Script)
		if err != nil {
			return fmt.Errorf("load script: %w", err)
		}
		opts.Mapper = mapper
	}
	res, err := resolver.New(httpClient, opts)
	if err != nil {
		return err
	}

	// media streams can outlive the API timeout
	streamClient := &http.Client{Transport: httpClient.HTTPClient.Transport}
	dl := downloader.New(streamClient, nil, cfg.Download.RateLimit)
	dl.SetChunkSize(cfg.Download.ChunkSize)
	dl.SetRetries(cfg.Download.Retries)

	db, err := store.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	blobs, err := store.NewFileBlobStore(cfg.Storage.BlobRoot, cfg.Storage.Bucket)
	if err != nil {
		return err
	}

	codec, err := shortcode.New(cfg.Codec.Key)
	if err != nil {
		return err
	}
	images, err := upload.New(upload.Config{
		MaxFileSize:  cfg.Upload.MaxFileSize,
		AllowedTypes: cfg.Upload.AllowedTypes,
		Origin:       cfg.Server.PublicOrigin,
		Attempts:     cfg.Upload.Attempts,
	}, codec, db, blobs)
	if err != nil {
		return err
	}
	images.SetMetrics(m)

	srv, err := server.New(server.Deps{
		Resolver: res,
		Streamer: dl,
		History:  db,
		Images:   images,
		Metrics:  m,
	}, server.Options{
		Address:         cfg.Server.Address,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		BatchLimit:      cfg.Server.BatchLimit,
		BatchWorkers:    cfg.Server.BatchWorkers,
		HistoryLimit:    cfg.History.MaxItems,
		MaxUploadSize:   cfg.Upload.MaxFileSize,
		SecureCookies:   isHTTPS(cfg.Server.PublicOrigin),
	})
	if err != nil {
		return err
	}

	log.Info("starting twitvid", logger.Fields{
		"version":  Version,
		"address":  cfg.Server.Address,
		"provider": res.Provider(),
		"cache":    rc.Cache,
		"origin":   cfg.Server.PublicOrigin,
	})
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("stopped")
	return nil
}

func isHTTPS(origin string) bool {
	return strings.HasPrefix(strings.ToLower(origin), "https://")
}
