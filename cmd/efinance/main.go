// Command efinance is a terminal client for the E-Finance backend.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"efinance/internal/api"
	appcli "efinance/internal/cli"
	"efinance/internal/config"
	"efinance/internal/log"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitSession = 2

	appKey = "app"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

// run executes args and maps the outcome to a process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	app := newApp(stdout, stderr)
	err := app.Run(args)
	if err == nil {
		return exitOK
	}
	return report(stderr, err)
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "efinance",
		Usage:     "manage your E-Finance account, categories and transactions",
		Version:   version,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env-file", Value: ".env", Usage: "dotenv file loaded before reading the environment"},
			&cli.StringFlag{Name: "api-url", Usage: "backend API base URL (overrides API_BASE_URL)"},
			&cli.StringFlag{Name: "store", Usage: "credential store: memory, file, sqlite or redis (overrides CREDENTIAL_STORE)"},
			&cli.StringFlag{Name: "credential-file", Usage: "credential file for the file store (overrides CREDENTIAL_FILE)"},
			&cli.BoolFlag{Name: "json", Usage: "print raw JSON instead of tables"},
			&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}, Usage: "log every request"},
		},
		Before:         setup,
		After:          teardown,
		ExitErrHandler: func(*cli.Context, error) {},
		Commands:       commands(),
	}
}

// setup wires configuration, logging and services for the selected command.
func setup(c *cli.Context) error {
	if c.Args().Len() == 0 || wantsHelp(c.Args().Slice()) {
		return nil
	}
	if err := appcli.LoadEnvFile(c.String("env-file")); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}

	cfg, err := appcli.LoadAndValidateConfig(func(cfg *config.Config) {
		if v := c.String("api-url"); v != "" {
			cfg.APIBaseURL = v
		}
		if v := c.String("store"); v != "" {
			cfg.CredentialStore = v
		}
		if v := c.String("credential-file"); v != "" {
			cfg.CredentialFile = v
		}
		if c.Bool("debug") {
			cfg.LogLevel = "debug"
		}
	})
	if err != nil {
		return err
	}

	logger, err := appcli.SetupLogger(cfg)
	if err != nil {
		return err
	}
	app, err := appcli.Bootstrap(c.Context, cfg, logger)
	if err != nil {
		return err
	}
	c.App.Metadata = map[string]any{appKey: app}
	logger.Debug("efinance started", log.FieldOperation, log.OpStartup, log.FieldBackend, cfg.CredentialStore)
	return nil
}

func teardown(c *cli.Context) error {
	if app, ok := c.App.Metadata[appKey].(*appcli.App); ok {
		return app.Close()
	}
	return nil
}

func wantsHelp(args []string) bool {
	if args[0] == "help" || args[0] == "h" {
		return true
	}
	for _, arg := range args {
		if arg == "-h" || arg == "--help" {
			return true
		}
	}
	return false
}

// appFrom returns the dependencies built by setup.
func appFrom(c *cli.Context) *appcli.App {
	return c.App.Metadata[appKey].(*appcli.App)
}

// report prints err for a human and returns the exit code.
func report(w io.Writer, err error) int {
	var authErr *api.AuthError
	var httpErr *api.HTTPError
	var netErr *api.NetworkError
	var exitErr cli.ExitCoder

	switch {
	case errors.As(err, &authErr):
		fmt.Fprintln(w, "session expired, please log in again")
		return exitSession
	case errors.As(err, &httpErr):
		fmt.Fprintln(w, "error:", httpErr.Message)
		for _, field := range httpErr.Fields() {
			fmt.Fprintf(w, "  %s: %s\n", field, strings.Join(httpErr.FieldErrors()[field], " "))
		}
		return exitFailure
	case errors.As(err, &netErr):
		fmt.Fprintf(w, "error: cannot reach %s: %v\n", netErr.URL, netErr.Err)
		return exitFailure
	case errors.As(err, &exitErr):
		if msg := exitErr.Error(); msg != "" {
			fmt.Fprintln(w, "error:", msg)
		}
		return exitErr.ExitCode()
	default:
		fmt.Fprintln(w, "error:", err)
		return exitFailure
	}
}
