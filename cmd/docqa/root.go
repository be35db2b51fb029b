package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-docqa-web/internal/app"
	"github.com/tbourn/go-docqa-web/internal/auth"
	"github.com/tbourn/go-docqa-web/internal/config"
	"github.com/tbourn/go-docqa-web/internal/guards"
)

// errNotSignedIn is returned by commands that need a session.
var errNotSignedIn = errors.New("not signed in: run `docqa login`")

// flushTimeout bounds the telemetry flush after each command.
const flushTimeout = 3 * time.Second

// cli carries the persistent flags and the seams tests replace.
type cli struct {
	envFile string
	apiURL  string
	output  string
	verbose bool

	in     io.Reader
	lines  *bufio.Reader
	newApp func(ctx context.Context, cfg config.Config, o app.Options) (*app.App, error)
}

func newRootCmd(version string) *cobra.Command {
	c := &cli{in: os.Stdin, newApp: app.New}
	return c.rootCmd(version)
}

func (c *cli) rootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "docqa",
		Short: "Ask questions about your documents",
		Long: `docqa talks to the document QA API on your behalf.

It keeps one signed-in session on disk, refreshes it before it expires and
shares it between the local web gateway and the terminal commands.

Quick Start:
  docqa login --email you@example.com     # Sign in
  docqa upload report.pdf                 # Upload a document
  docqa ask "What was Q3 revenue?"        # Ask a question
  docqa chat                              # Interactive session
  docqa serve                             # Run the web gateway`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch c.output {
			case "text", "json", "yaml":
				return nil
			}
			return fmt.Errorf("unknown output format %q (text, json, yaml)", c.output)
		},
	}
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	pf := root.PersistentFlags()
	pf.StringVar(&c.envFile, "env-file", ".env", "Load environment variables from this file when it exists")
	pf.StringVar(&c.apiURL, "api-url", "", "Override the QA API base URL (API_URL)")
	pf.StringVarP(&c.output, "output", "o", "text", "Output format: text, json or yaml")
	pf.BoolVarP(&c.verbose, "verbose", "v", false, "Log at the configured level instead of warnings only")

	root.AddCommand(
		c.serveCmd(),
		c.loginCmd(),
		c.signupCmd(),
		c.logoutCmd(),
		c.whoamiCmd(),
		c.askCmd(),
		c.chatCmd(),
		c.sessionsCmd(),
		c.documentsCmd(),
		c.uploadCmd(),
		c.validateCmd(),
	)
	return root
}

// loadConfig reads the env file (if any) and then the environment.
// Variables already set win over the file.
func (c *cli) loadConfig(cmd *cobra.Command) (config.Config, error) {
	if c.envFile != "" {
		if err := godotenv.Load(c.envFile); err != nil {
			explicit := cmd.Flags().Changed("env-file")
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return config.Config{}, fmt.Errorf("load %s: %w", c.envFile, err)
			}
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if !c.verbose && cmd.Name() != "serve" {
		cfg.LogLevel = "warn"
		cfg.LogPretty = true
	}
	return cfg, nil
}

// withApp builds the application for one command and tears it down after,
// flushing buffered telemetry.
func (c *cli) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := c.loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	stderr := cmd.ErrOrStderr()
	a, err := c.newApp(ctx, cfg, app.Options{
		Service:   "docqa-cli",
		LogOutput: stderr,
		APIURL:    c.apiURL,
		Navigator: auth.NavigatorFunc(func() {
			fmt.Fprintln(stderr, mutedStyle.Render("Signed out. Run `docqa login` to sign in again."))
		}),
	})
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	err = fn(ctx, a)

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()
	a.Flush(fctx)
	return err
}

// requireRoute applies the route guards to a CLI area.
func requireRoute(a *app.App, path string) error {
	if !a.Store.IsAuthenticated() {
		return errNotSignedIn
	}
	d := a.Guards.Check(path, a.Store.CurrentUser(), true)
	if d.Allowed {
		return nil
	}
	if d.Redirect == a.Config.LoginPath || d.Redirect == guards.DefaultLoginPath {
		return errNotSignedIn
	}
	return fmt.Errorf("access denied to %s: your account lacks the required role or permission", path)
}
