package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-docqa-web/internal/app"
	"github.com/tbourn/go-docqa-web/internal/auth"
	"github.com/tbourn/go-docqa-web/internal/domain"
)

func (c *cli) reader() *bufio.Reader {
	if c.lines == nil {
		c.lines = bufio.NewReader(c.in)
	}
	return c.lines
}

// prompt writes label to w and reads one line from the cli's input.
func (c *cli) prompt(w io.Writer, label string) (string, error) {
	fmt.Fprint(w, label)
	line, err := c.reader().ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *cli) loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and keep the session on disk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				var err error
				if email == "" {
					if email, err = c.prompt(cmd.ErrOrStderr(), "Email: "); err != nil {
						return err
					}
				}
				if password == "" {
					if password, err = c.prompt(cmd.ErrOrStderr(), "Password: "); err != nil {
						return err
					}
				}
				u, err := a.Auth.Login(ctx, auth.LoginRequest{Email: email, Password: password})
				if err != nil {
					return err
				}
				a.Analytics.TrackUserAction("login", "auth", "cli", u.ID)
				return c.emit(cmd.OutOrStdout(), u, func(w io.Writer) { printUser(w, u) })
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email (prompted when empty)")
	cmd.Flags().StringVar(&password, "password", "", "Account password (prompted when empty)")
	return cmd
}

func (c *cli) signupCmd() *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				var err error
				if password == "" {
					if password, err = c.prompt(cmd.ErrOrStderr(), "Password: "); err != nil {
						return err
					}
				}
				u, err := a.Auth.Signup(ctx, auth.SignupRequest{Name: name, Email: email, Password: password})
				if err != nil {
					return err
				}
				a.Analytics.TrackUserAction("signup", "auth", "cli", u.ID)
				return c.emit(cmd.OutOrStdout(), u, func(w io.Writer) { printUser(w, u) })
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password (prompted when empty)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if !a.Store.IsAuthenticated() {
					fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("Not signed in"))
					return nil
				}
				a.Auth.Logout(ctx)
				return nil
			})
		},
	}
}

// whoami is the CLI view of the current session.
type whoami struct {
	User      *domain.User `json:"user"                yaml:"user"`
	RefreshAt *time.Time   `json:"refreshAt,omitempty" yaml:"refreshAt,omitempty"`
}

func (c *cli) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(_ context.Context, a *app.App) error {
				u := a.Store.CurrentUser()
				if u == nil {
					return errNotSignedIn
				}
				out := whoami{User: u}
				if at, ok := a.Auth.NextRefresh(); ok {
					out.RefreshAt = &at
				}
				return c.emit(cmd.OutOrStdout(), out, func(w io.Writer) {
					printUser(w, u)
					if out.RefreshAt != nil {
						fmt.Fprintln(w, dateStyle.Render("  session refreshes at "+out.RefreshAt.Local().Format(time.Kitchen)))
					}
				})
			})
		},
	}
}
