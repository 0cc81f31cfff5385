package main

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/dm/crawlwatch/internal/config"
	"github.com/dm/crawlwatch/internal/engine"
	"github.com/dm/crawlwatch/internal/transport"
	"github.com/dm/crawlwatch/internal/tui"
)

// Watch runs the terminal dashboard until the user quits.
func (r *Runner) Watch(ctx context.Context, cmd *cli.Command) error {
	cfg, dc, err := r.newClient(cmd)
	if err != nil {
		return err
	}
	ids := append(cmd.Args().Slice(), cmd.StringSlice("session")...)

	// Logs go to a file so they don't interfere with TUI rendering.
	logFile := cfg.Log.File
	if cmd.IsSet("log-file") {
		logFile = cmd.String("log-file")
	}
	logger, closer, err := config.NewFileLogger(logFile, cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	defer closer.Close()

	src, err := cfg.PushSource(dc)
	if err != nil {
		return err
	}
	if rs, ok := src.(*transport.RedisSource); ok {
		defer rs.Close()
	}

	bridge := tui.NewBridge()
	eng, err := engine.New(engine.Options{
		Client:    dc,
		Source:    src,
		Confirmer: bridge,
		Logger:    logger,
		Config:    cfg.EngineConfig(),
	})
	if err != nil {
		return err
	}
	unsubscribe := eng.Subscribe(bridge)
	defer unsubscribe()

	app := tui.NewApp(eng, tui.AppOptions{
		BaseURL:      dc.BaseURL(),
		PollInterval: cfg.Poll.Interval.Duration,
	})
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	bridge.Attach(p.Send)

	if err := eng.Start(ctx); err != nil {
		return err
	}
	defer eng.Stop()
	eng.Track(ids...)
	logger.Info("dashboard started", "sessions", len(ids), "push", cfg.Push.Transport, "base", dc.BaseURL())

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("error running dashboard: %w", err)
	}
	return nil
}
