package main

import (
	"log/slog"
	"os"
	"time"

	"dash-proxy/internal/platform/config"
	"dash-proxy/internal/platform/logger"
	"dash-proxy/internal/playurl"
	"dash-proxy/internal/upstream"
	"dash-proxy/internal/wbi"

	"github.com/spf13/cobra"
)

// commandContext carries the persistent flags shared by every subcommand.
type commandContext struct {
	apiBase    string
	proxyBase  string
	credential string
	timeout    time.Duration
	logLevel   string
}

func (c *commandContext) client() *upstream.Client {
	return upstream.New(c.apiBase, upstream.WithTimeout(c.timeout))
}

func (c *commandContext) logger() *slog.Logger {
	return logger.NewWriter(os.Stderr, c.logLevel, "text")
}

func (c *commandContext) resolver() *playurl.Resolver {
	client := c.client()
	return playurl.NewResolver(client, wbi.NewKeyFetcher(client), wbi.Signer{}, c.logger())
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}
	defaults := config.Default()

	rootCmd := &cobra.Command{
		Use:           "dashctl",
		Short:         "Resolve videos, sign requests and render DASH manifests without the server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&ctx.apiBase, "api-base", config.GetEnv("UPSTREAM_API_BASE", defaults.UpstreamAPIBase), "Upstream API base URL")
	flags.StringVar(&ctx.proxyBase, "proxy-base", "http://localhost:"+defaults.Port+defaults.ProxyPathPrefix, "Proxy base written into manifest BaseURLs")
	flags.StringVar(&ctx.credential, "sessdata", config.GetEnv("SESSDATA", ""), "SESSDATA session cookie value")
	flags.DurationVar(&ctx.timeout, "timeout", config.GetEnvDuration("UPSTREAM_TIMEOUT", defaults.UpstreamTimeout), "Per-call upstream timeout")
	flags.StringVar(&ctx.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newManifestCommand(ctx))
	rootCmd.AddCommand(newFormatsCommand(ctx))
	rootCmd.AddCommand(newSignCommand(ctx))

	return rootCmd
}
