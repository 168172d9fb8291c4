package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/robertmeta/news-cli/api"
	"github.com/robertmeta/news-cli/config"
	"github.com/robertmeta/news-cli/logging"
	"github.com/robertmeta/news-cli/model"
	"github.com/robertmeta/news-cli/session"
	"github.com/robertmeta/news-cli/store"
)

const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitUsageError   = 2
	ExitDataError    = 3
	ExitAuthError    = 4
)

const version = "0.1.0"

// sessionless names the commands that never read the signed-in identity.
// They skip confirming the stored session with the service.
var sessionless = map[string]bool{
	"login":      true,
	"register":   true,
	"logout":     true,
	"articles":   true,
	"categories": true,
	"sources":    true,
	"help":       true,
	"h":          true,
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitGeneralError)
	}
}

// runner owns the components shared by every command. They are built in the
// app's Before hook and released in After.
type runner struct {
	now func() time.Time

	cfg     config.Config
	log     *slog.Logger
	store   *store.Store
	client  *api.Client
	session *session.Store
	out     io.Writer
	in      io.Reader
}

func newApp() *cli.App {
	r := &runner{now: time.Now}

	return &cli.App{
		Name:    "news-cli",
		Usage:   "A scriptable client for the news aggregation service",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Config file path (default: $NEWS_CLI_CONFIG or ~/.config/news-cli/config.yaml)",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Database file path",
			},
			&cli.StringFlag{
				Name:  "auth-url",
				Usage: "Base URL of the authentication service",
			},
			&cli.StringFlag{
				Name:  "api-url",
				Usage: "Base URL of the content service",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Request timeout",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
			},
		},
		Before:   r.setup,
		After:    r.teardown,
		Commands: r.commands(),
	}
}

func (r *runner) commands() []*cli.Command {
	var cmds []*cli.Command
	cmds = append(cmds, r.accountCommands()...)
	cmds = append(cmds, r.articleCommands()...)
	cmds = append(cmds, r.catalogCommands()...)
	cmds = append(cmds, r.engageCommands()...)
	return cmds
}

// setup resolves the configuration, opens the database and restores the
// persisted session for commands that use it.
func (r *runner) setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Invalid configuration: %v", err), ExitUsageError)
	}
	if c.IsSet("db") {
		cfg.DB = c.String("db")
	}
	if c.IsSet("auth-url") {
		cfg.AuthURL = c.String("auth-url")
	}
	if c.IsSet("api-url") {
		cfg.APIURL = c.String("api-url")
	}
	if c.IsSet("timeout") {
		cfg.Timeout = c.Duration("timeout")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return cli.Exit(fmt.Sprintf("Invalid configuration: %v", err), ExitUsageError)
	}

	r.cfg = cfg
	r.out = c.App.Writer
	r.in = c.App.Reader
	r.log = logging.New(c.App.ErrWriter, cfg.LogLevel)

	s, err := openStore(cfg.DB)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	r.store = s

	pipeline := api.NewPipeline()
	r.client = api.New(api.Config{
		AuthURL:    cfg.AuthURL,
		ContentURL: cfg.APIURL,
		Timeout:    cfg.Timeout,
		UserAgent:  "news-cli/" + version,
		Logger:     r.log,
	}, pipeline)
	r.session = session.New(r.client, r.store, pipeline, r.log)

	if name := c.Args().First(); name == "" || sessionless[name] {
		return nil
	}
	if err := r.session.Restore(ctxOf(c)); err != nil {
		r.log.Warn("could not confirm stored session", "error", err)
	}
	return nil
}

func (r *runner) teardown(c *cli.Context) error {
	if r.store == nil {
		return nil
	}
	err := r.store.Close()
	r.store = nil
	return err
}

func openStore(dbPath string) (*store.Store, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	s, err := store.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return s, nil
}

func ctxOf(c *cli.Context) context.Context {
	if c.Context != nil {
		return c.Context
	}
	return context.Background()
}

func (r *runner) outputJSON(v interface{}) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// exitError maps a failure to the exit code of its kind.
func exitError(err error) error {
	switch model.KindOf(err) {
	case model.KindAuthentication, model.KindAuthorization:
		return cli.Exit(err.Error(), ExitAuthError)
	case model.KindRead, model.KindWrite:
		return cli.Exit(err.Error(), ExitDataError)
	}
	if api.IsUnauthorized(err) || errors.Is(err, model.ErrNotAuthenticated) {
		return cli.Exit(err.Error(), ExitAuthError)
	}
	return cli.Exit(fmt.Sprintf("Error: %v", err), ExitGeneralError)
}

// parseID reads a positive numeric id argument.
func parseID(arg, what string) (int64, error) {
	var id int64
	if _, err := fmt.Sscanf(arg, "%d", &id); err != nil || id <= 0 {
		return 0, cli.Exit(fmt.Sprintf("Invalid %s: %q", what, arg), ExitUsageError)
	}
	return id, nil
}

// readSecret returns value, or the first line of in when value is "-".
func readSecret(value string, in io.Reader) (string, error) {
	if value != "-" {
		return value, nil
	}
	if in == nil {
		in = os.Stdin
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
