// Command contabile is a terminal client for the accounting service:
// sign in once, then manage expenses and categories from the shell.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"contabile/internal/api"
	"contabile/internal/cli"
	"contabile/internal/config"
	"contabile/internal/expense"
	"contabile/internal/log"
	"contabile/internal/notify"
	"contabile/internal/session"
)

const usage = `Usage: contabile <command> [flags]

Commands:
  signup       register a new account
  activate     activate an account with the emailed token
  login        sign in with email and password
  logout       sign out and drop the stored credential
  whoami       show the signed-in user
  connect      print the login URL for google or github
  reset        password reset flow (request, confirm)
  profile      change username, password, or email; unlink providers
  expenses     list, search, add, edit, and remove expenses
  categories   list, add, rename, and remove categories
  export       export expenses to CSV or Google Sheets
`

type app struct {
	cfg     *config.Config
	logger  *log.Logger
	session *session.Session
	cache   *expense.Cache
	cleanup []func() error
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cli.LoadEnvFile()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg)

	a := newApp(cfg, logger)
	defer a.close()

	if err := a.run(context.Background(), os.Args[1], os.Args[2:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp(cfg *config.Config, logger *log.Logger) *app {
	a := &app{cfg: cfg, logger: logger}

	tokens, closeStore := cli.OpenTokenStore(logger, cfg)
	a.cleanup = append(a.cleanup, closeStore)

	client := cli.NewAPIClient(logger, cfg, tokens)
	a.session = session.New(client, tokens, logger)

	var notifier expense.Notifier
	if cfg.AMQPURL != "" {
		amqpClient, err := notify.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			// Change events are best-effort; the client works without them.
			logger.Warn("AMQP unavailable, change events disabled", log.FieldError, err)
		} else {
			notifier = amqpClient
			a.cleanup = append(a.cleanup, amqpClient.Close)
		}
	}
	a.cache = expense.NewCache(client, a.session, notifier, logger)

	return a
}

func (a *app) close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		if err := a.cleanup[i](); err != nil {
			a.logger.Warn("cleanup failed", log.FieldError, err)
		}
	}
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "signup":
		return a.runSignup(ctx, args)
	case "activate":
		return a.runActivate(ctx, args)
	case "login":
		return a.runLogin(ctx, args)
	case "logout":
		return a.runLogout(ctx)
	case "whoami":
		return a.runWhoami(ctx)
	case "connect":
		return a.runConnect(args)
	case "reset":
		return a.runReset(ctx, args)
	case "profile":
		return a.runProfile(ctx, args)
	case "expenses":
		return a.runExpenses(ctx, args)
	case "categories":
		return a.runCategories(ctx, args)
	case "export":
		return a.runExport(ctx, args)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

// requireSession restores the identity from a persisted credential before
// an authenticated command runs.
func (a *app) requireSession(ctx context.Context) error {
	if a.session.IsAuthenticated() {
		return nil
	}
	if _, err := a.session.Restore(ctx); err != nil {
		if errors.Is(err, api.ErrUnauthorized) || api.IsAuthorization(err) {
			return fmt.Errorf("not signed in, run `contabile login` first")
		}
		return err
	}
	return nil
}
