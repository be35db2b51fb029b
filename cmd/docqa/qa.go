package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-docqa-web/internal/app"
	"github.com/tbourn/go-docqa-web/internal/chat"
	"github.com/tbourn/go-docqa-web/internal/domain"
)

func (c *cli) askCmd() *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "ask <question...>",
		Short: "Ask one question",
		Long: `Ask a question about your documents and print the answer with its sources.

Without --session the question starts a new session titled after it.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := requireRoute(a, "/qa"); err != nil {
					return err
				}
				if sessionID != "" {
					if err := a.Chat.SwitchSession(ctx, sessionID); err != nil {
						return fmt.Errorf("open session %s: %w", sessionID, err)
					}
				}
				msg, err := a.Chat.Ask(ctx, strings.Join(args, " "))
				if msg != nil {
					if eerr := c.emit(cmd.OutOrStdout(), msg, func(w io.Writer) { printMessage(w, *msg) }); eerr != nil {
						return eerr
					}
				}
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Continue an existing session")
	return cmd
}

const chatHelp = `Commands:
  /help                 Show this help
  /new                  Start a new session
  /sessions             List your sessions
  /switch <id>          Continue another session
  /popular [n]          List suggested questions, or ask suggestion n
  /rate <id> <up|down>  Rate an answer
  /quit                 Leave`

func (c *cli) chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive question and answer session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := requireRoute(a, "/qa"); err != nil {
					return err
				}
				return c.repl(ctx, cmd.OutOrStdout(), a.Chat)
			})
		},
	}
}

// chatSession is what the REPL needs from the controller.
type chatSession interface {
	Init(ctx context.Context) error
	Ask(ctx context.Context, text string) (*domain.ChatMessage, error)
	AskPopular(ctx context.Context, question string) (*domain.ChatMessage, error)
	RateAnswer(ctx context.Context, answerID string, r domain.Rating) error
	SwitchSession(ctx context.Context, sessionID string) error
	StartNewSession(ctx context.Context) (*domain.QASession, error)
	Snapshot() chat.Snapshot
}

func (c *cli) repl(ctx context.Context, w io.Writer, ch chatSession) error {
	if err := ch.Init(ctx); err != nil {
		fmt.Fprintln(w, errorStyle.Render("Could not load everything: "+err.Error()))
	}
	fmt.Fprintln(w, headerStyle.Render("docqa chat"))
	printPopular(w, ch.Snapshot().Popular)
	fmt.Fprintln(w, mutedStyle.Render("Type a question, or /help."))

	for {
		line, err := c.prompt(w, questionStyle.Render("> "))
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		if strings.HasPrefix(line, "/") {
			if quit := c.replCommand(ctx, w, ch, line); quit {
				return nil
			}
			continue
		}
		msg, err := ch.Ask(ctx, line)
		switch {
		case chat.IsRejected(err):
			fmt.Fprintln(w, mutedStyle.Render(err.Error()))
		case msg != nil:
			printMessage(w, *msg)
		case err != nil:
			fmt.Fprintln(w, errorStyle.Render(err.Error()))
		}
	}
}

func (c *cli) replCommand(ctx context.Context, w io.Writer, ch chatSession, line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(w, chatHelp)
	case "/new":
		s, err := ch.StartNewSession(ctx)
		if err != nil {
			fmt.Fprintln(w, errorStyle.Render(err.Error()))
			return false
		}
		fmt.Fprintln(w, okStyle.Render("New session ")+idStyle.Render(s.ID))
	case "/sessions":
		printSessions(w, ch.Snapshot().Sessions)
	case "/switch":
		if len(fields) != 2 {
			fmt.Fprintln(w, mutedStyle.Render("usage: /switch <id>"))
			return false
		}
		if err := ch.SwitchSession(ctx, fields[1]); err != nil {
			fmt.Fprintln(w, errorStyle.Render(err.Error()))
			return false
		}
		printTranscript(w, ch.Snapshot().Messages)
	case "/popular":
		popular := ch.Snapshot().Popular
		if len(fields) == 1 {
			printPopular(w, popular)
			return false
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 1 || n > len(popular) {
			fmt.Fprintln(w, mutedStyle.Render("no such suggestion"))
			return false
		}
		q := popular[n-1].Question
		fmt.Fprintf(w, "%s %s\n", questionStyle.Render("You:"), q)
		msg, err := ch.AskPopular(ctx, q)
		switch {
		case msg != nil:
			printMessage(w, *msg)
		case err != nil:
			fmt.Fprintln(w, mutedStyle.Render(err.Error()))
		}
	case "/rate":
		if len(fields) != 3 {
			fmt.Fprintln(w, mutedStyle.Render("usage: /rate <id> <up|down>"))
			return false
		}
		r, ok := parseRating(fields[2])
		if !ok {
			fmt.Fprintln(w, mutedStyle.Render("rating must be up or down"))
			return false
		}
		if err := ch.RateAnswer(ctx, fields[1], r); err != nil {
			fmt.Fprintln(w, errorStyle.Render(err.Error()))
			return false
		}
		fmt.Fprintln(w, okStyle.Render("Thanks for the feedback"))
	default:
		fmt.Fprintln(w, mutedStyle.Render("unknown command, try /help"))
	}
	return false
}

func parseRating(s string) (domain.Rating, bool) {
	switch strings.ToLower(s) {
	case "up", "+", "helpful":
		return domain.RatingHelpful, true
	case "down", "-", "not_helpful":
		return domain.RatingNotHelpful, true
	}
	return domain.RatingUnset, false
}

func printPopular(w io.Writer, popular []domain.PopularQuestion) {
	if len(popular) == 0 {
		return
	}
	fmt.Fprintln(w, titleStyle.Render("Popular questions"))
	for i, p := range popular {
		fmt.Fprintf(w, "  %d. %s %s\n", i+1, p.Question, dateStyle.Render(fmt.Sprintf("(%d)", p.Count)))
	}
}

func (c *cli) sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage QA sessions",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List your sessions",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
					if err := requireRoute(a, "/qa"); err != nil {
						return err
					}
					ss, err := a.QA.Sessions(ctx)
					if err != nil {
						return err
					}
					if ss == nil {
						ss = []domain.QASession{}
					}
					return c.emit(cmd.OutOrStdout(), ss, func(w io.Writer) { printSessions(w, ss) })
				})
			},
		},
		&cobra.Command{
			Use:   "show <id>",
			Short: "Print a session's transcript",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
					if err := requireRoute(a, "/qa"); err != nil {
						return err
					}
					if err := a.Chat.SwitchSession(ctx, args[0]); err != nil {
						return err
					}
					msgs := a.Chat.Transcript()
					return c.emit(cmd.OutOrStdout(), msgs, func(w io.Writer) { printTranscript(w, msgs) })
				})
			},
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a session",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
					if err := requireRoute(a, "/qa"); err != nil {
						return err
					}
					if err := a.QA.DeleteSession(ctx, args[0]); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("Deleted session ")+idStyle.Render(args[0]))
					return nil
				})
			},
		},
	)
	return cmd
}
