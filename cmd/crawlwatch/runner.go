package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/dm/crawlwatch/internal/client"
	"github.com/dm/crawlwatch/internal/config"
	"github.com/dm/crawlwatch/internal/model"
)

// Runner holds the dependencies shared by CLI commands and provides a
// method for each command action.
type Runner struct {
	logger    *log.Logger
	output    io.Writer
	errOutput io.Writer
	input     io.Reader
	lookupEnv func(string) (string, bool)
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Logger    *log.Logger
	Output    io.Writer
	ErrOutput io.Writer
	Input     io.Reader
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// NewRunner creates a new Runner, filling unset options with the process
// defaults.
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.ErrOutput == nil {
		opts.ErrOutput = os.Stderr
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.Logger == nil {
		opts.Logger = config.NewLogger(opts.ErrOutput, "info")
	}
	if opts.LookupEnv == nil {
		opts.LookupEnv = os.LookupEnv
	}
	return &Runner{
		logger:    opts.Logger,
		output:    opts.Output,
		errOutput: opts.ErrOutput,
		input:     opts.Input,
		lookupEnv: opts.LookupEnv,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		initCommand, watchCommand, statusCommand, statsCommand, startCommand, stopCommand, pauseCommand,
	} {
		commands = append(commands, fn(r))
	}
	return commands
}

// loadConfig layers the config file, the .env file, the environment and
// the global flags, in that order, and validates the result. The logger
// level follows the loaded config.
func (r *Runner) loadConfig(cmd *cli.Command) (*config.Config, error) {
	if err := config.LoadDotEnv(cmd.String("env-file")); err != nil {
		return nil, err
	}
	cfg, err := config.Load(cmd.String("config"), !cmd.IsSet("config"))
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(r.lookupEnv)

	if cmd.IsSet("url") {
		cfg.Server.BaseURL = cmd.String("url")
	}
	if cmd.IsSet("insecure") {
		cfg.Server.Insecure = cmd.Bool("insecure")
	}
	if cmd.IsSet("interval") {
		d := cmd.Duration("interval")
		if d <= 0 {
			return nil, fmt.Errorf("%w: --interval must be positive", model.ErrInvalidConfig)
		}
		cfg.Poll.Interval.Duration = d
	}
	if cmd.IsSet("push") {
		cfg.Push.Transport = cmd.String("push")
	}
	if cmd.IsSet("log-level") {
		cfg.Log.Level = cmd.String("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r.logger.SetLevel(parseLevel(cfg.Log.Level))
	return cfg, nil
}

func parseLevel(s string) log.Level {
	lvl, err := log.ParseLevel(s)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// newClient loads the configuration and builds the HTTP client from it.
func (r *Runner) newClient(cmd *cli.Command) (*config.Config, *client.DefaultClient, error) {
	cfg, err := r.loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	cc, err := cfg.ClientConfig()
	if err != nil {
		return nil, nil, err
	}
	dc, err := client.NewDefaultClient(cc)
	if err != nil {
		return nil, nil, err
	}
	return cfg, dc, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(append(output, '\n')); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
