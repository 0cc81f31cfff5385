package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/dm/crawlwatch/internal/config"
	"github.com/dm/crawlwatch/internal/engine"
	"github.com/dm/crawlwatch/internal/model"
)

// Init writes the example configuration to the --config path.
func (r *Runner) Init(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("config")
	if err := config.CreateConfigFile(path); err != nil {
		return err
	}
	return r.writePlain("wrote %s\n", path)
}

// Command returns the action that dispatches kind for a single session.
// Destructive commands are confirmed on stdin unless --yes is given.
func (r *Runner) Command(kind model.CommandKind) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		if cmd.Args().Len() != 1 {
			return errors.New("exactly one session id is required")
		}
		id := cmd.Args().First()

		cfg, dc, err := r.newClient(cmd)
		if err != nil {
			return err
		}

		var confirmer engine.Confirmer = &promptConfirmer{in: bufio.NewReader(r.input), out: r.output}
		if cmd.Bool("yes") {
			confirmer = engine.ConfirmFunc(func(context.Context, string, model.CommandKind) (bool, error) {
				return true, nil
			})
		}

		d := engine.NewDispatcher(dc, confirmer, cfg.Command.Timeout.Duration, r.logger)
		res, err := d.Issue(ctx, id, kind)
		if err != nil {
			if errors.Is(err, model.ErrConfirmationDeclined) {
				return r.writePlain("%s %s cancelled\n", kind, id)
			}
			return err
		}
		if err := r.writePlain("%s %s accepted (request %s)\n", kind, id, res.RequestID); err != nil {
			return err
		}

		// Show where the session ended up. The server may need a moment, so a
		// failure here is only logged.
		st, err := dc.GetSessionStatus(ctx, id)
		if err != nil {
			r.logger.Warn("status refresh failed", "session", id, "err", err)
			return nil
		}
		snap, err := st.Snapshot(id)
		if err != nil {
			r.logger.Warn("status refresh failed", "session", id, "err", err)
			return nil
		}
		return r.writePlain("session %s is %s\n", id, snap.Label())
	}
}

// promptConfirmer asks on the terminal before a destructive command. The
// answer is abandoned when ctx ends; the pending read is left to finish
// on its own.
type promptConfirmer struct {
	in  *bufio.Reader
	out io.Writer
}

func (p *promptConfirmer) Confirm(ctx context.Context, sessionID string, kind model.CommandKind) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	verb := kind.String()
	fmt.Fprintf(p.out, "%s session %s? The crawl cannot be resumed once stopped. [y/N] ",
		strings.ToUpper(verb[:1])+verb[1:], sessionID)

	type answer struct {
		line string
		err  error
	}
	read := make(chan answer, 1)
	go func() {
		line, err := p.in.ReadString('\n')
		read <- answer{line, err}
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return false, ctx.Err()
	case a := <-read:
		if a.err != nil && !errors.Is(a.err, io.EOF) {
			return false, a.err
		}
		return parseConfirm(a.line), nil
	}
}

// parseConfirm accepts y or yes in any case. Anything else, including an
// empty answer, declines.
func parseConfirm(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}
