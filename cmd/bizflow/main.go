package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/djlord-it/bizflow/internal/config"
)

// Build-time variables set via -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitInvalidConfig = 2
)

// exitError carries the process exit code for a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

func runtimeError(format string, args ...any) error {
	return &exitError{code: exitRuntimeError, err: fmt.Errorf(format, args...)}
}

func configError(err error) error {
	return &exitError{code: exitInvalidConfig, err: fmt.Errorf("configuration error: %w", err)}
}

// CLI is the command tree. Configuration comes from the environment,
// optionally seeded from .env files.
type CLI struct {
	EnvFile []string `name:"env-file" help:"Load environment from these files before reading configuration (default: ./.env if present)" type:"path"`

	Serve    ServeCmd    `cmd:"" help:"Start the API, dispatcher and reminder scheduler"`
	Validate ValidateCmd `cmd:"" help:"Validate configuration (no connections made)"`
	Config   ConfigCmd   `cmd:"" help:"Print effective configuration as JSON (secrets masked)"`
	Version  VersionCmd  `cmd:"" help:"Print version information"`
	Emit     EmitCmd     `cmd:"" help:"Emit one event synchronously against the configured database"`
}

// AfterApply loads .env files before any command reads configuration.
func (c *CLI) AfterApply() error {
	return config.LoadDotEnv(c.EnvFile...)
}

type ValidateCmd struct{}

func (ValidateCmd) Run() error {
	if err := config.Validate(config.Load()); err != nil {
		return &exitError{code: exitInvalidConfig, err: err}
	}
	fmt.Println("configuration valid")
	return nil
}

type ConfigCmd struct{}

func (ConfigCmd) Run() error {
	cfg := config.Load()
	data, err := cfg.MaskedJSON()
	if err != nil {
		return runtimeError("failed to marshal config: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

type VersionCmd struct{}

func (VersionCmd) Run() error {
	fmt.Printf("bizflow version %s (commit: %s)\n", version, commit)
	return nil
}

func newParser(cli *CLI, opts ...kong.Option) (*kong.Kong, error) {
	opts = append([]kong.Option{
		kong.Name("bizflow"),
		kong.Description("Workflow trigger and automation engine for the business portal."),
		kong.UsageOnError(),
	}, opts...)
	return kong.New(cli, opts...)
}

func main() {
	var cli CLI
	parser, err := newParser(&cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bizflow: %v\n", err)
		os.Exit(exitRuntimeError)
	}

	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	os.Exit(exitCode(ctx.Run()))
}

func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	fmt.Fprintln(os.Stderr, err)
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitRuntimeError
}
