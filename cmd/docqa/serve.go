package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-docqa-web/internal/app"
)

func (c *cli) serveCmd() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local web gateway",
		Long: `Run the local web gateway in front of the QA API.

The browser UI talks to this process; it holds the session, refreshes it
and ships analytics in batches. Stops gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				srv := a.Server()
				if port != "" {
					srv.Addr = ":" + port
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %s -> %s\n", okStyle.Render("docqa gateway"), srv.Addr, a.Config.APIURL)
				return a.Serve(ctx, srv)
			})
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "Listen port (PORT)")
	return cmd
}
