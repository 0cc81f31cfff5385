package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/dm/crawlwatch/internal/model"
)

func main() {
	runner := NewRunner(RunnerOpts{})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(runner).Run(ctx, os.Args); err != nil {
		if errors.Is(err, model.ErrInvalidConfig) {
			runner.logger.Error("configuration error", "err", err)
			os.Exit(2)
		}
		runner.logger.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func newApp(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "crawlwatch",
		Usage:     "Watch and control crawl sessions on a crawl server",
		Version:   "0.3.0",
		Flags:     globalFlags(),
		Commands:  r.register(),
		Writer:    r.output,
		ErrWriter: r.errOutput,
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			Value:   "crawlwatch.toml",
		},
		&cli.StringFlag{
			Name:  "env-file",
			Usage: "Path to a .env file with credentials",
			Value: ".env",
		},
		&cli.StringFlag{
			Name:  "url",
			Usage: "Crawl server base URL (credentials may be embedded)",
		},
		&cli.BoolFlag{
			Name:  "insecure",
			Usage: "Skip TLS certificate verification",
		},
		&cli.DurationFlag{
			Name:  "interval",
			Usage: "Polling interval (e.g. 5s, 30s)",
		},
		&cli.StringFlag{
			Name:  "push",
			Usage: "Push transport: websocket, redis or none",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn or error",
		},
	}
}
