package main

import (
	"github.com/urfave/cli/v3"

	"github.com/dm/crawlwatch/internal/model"
)

// initCommand writes an example configuration file.
func initCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "init",
		Usage:  "Write an example configuration file to --config",
		Action: r.Init,
	}
}

// watchCommand runs the terminal dashboard.
func watchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Aliases:   []string{"w"},
		Usage:     "Open the live dashboard for one or more crawl sessions",
		ArgsUsage: "[session-id...]",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "session",
				Aliases: []string{"s"},
				Usage:   "Session id to watch (repeatable)",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Write logs here while the dashboard owns the terminal",
			},
		},
		Action: r.Watch,
	}
}

// statusCommand fetches session statuses once.
func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Fetch the current status of crawl sessions",
		ArgsUsage: "<session-id...>",
		Flags:     outputFlags(),
		Action:    r.Status,
	}
}

// statsCommand fetches the server's dashboard stats.
func statsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "stats",
		Usage:     "Show server dashboard stats, cross-checked against the given sessions",
		ArgsUsage: "[session-id...]",
		Flags:     outputFlags(),
		Action:    r.Stats,
	}
}

func startCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "start",
		Usage:     "Start or resume a crawl session",
		ArgsUsage: "<session-id>",
		Action:    r.Command(model.CommandStart),
	}
}

func stopCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "stop",
		Usage:     "Stop a crawl session (asks for confirmation)",
		ArgsUsage: "<session-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "Do not ask for confirmation",
			},
		},
		Action: r.Command(model.CommandStop),
	}
}

func pauseCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "pause",
		Usage:     "Pause a running crawl session",
		ArgsUsage: "<session-id>",
		Action:    r.Command(model.CommandPause),
	}
}

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print JSON output",
		},
	}
}
