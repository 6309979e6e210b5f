package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"contabile/internal/cli"
	"contabile/internal/core"
)

func (a *app) runSignup(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("signup", flag.ContinueOnError)
	username := fs.String("user", "", "Username")
	email := fs.String("email", "", "Email address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" || *email == "" {
		fs.PrintDefaults()
		return fmt.Errorf("missing required flags: user, email")
	}

	password, err := cli.ReadPassword(os.Stdin, os.Stdout, "Password: ")
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	if err := a.session.SignUp(ctx, *username, *email, password); err != nil {
		return err
	}
	fmt.Printf("Registered %s. Check %s for the activation link.\n", *username, *email)
	return nil
}

func (a *app) runActivate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("activate", flag.ContinueOnError)
	token := fs.String("token", "", "Activation token from the email")
	id := fs.String("id", "", "Activation id from the email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *token == "" || *id == "" {
		fs.PrintDefaults()
		return fmt.Errorf("missing required flags: token, id")
	}

	user, err := a.session.Activate(ctx, *token, *id)
	if err != nil {
		return err
	}
	fmt.Printf("Account activated. Signed in as %s <%s>.\n", user.Username, user.Email)
	return nil
}

func (a *app) runLogin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "Email address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	addr := *email
	if addr == "" {
		var err error
		addr, err = cli.ReadLine(os.Stdin, os.Stdout, "Email: ")
		if err != nil {
			return err
		}
	}
	password, err := cli.ReadPassword(os.Stdin, os.Stdout, "Password: ")
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	user, err := a.session.SignIn(ctx, addr, password)
	if err != nil {
		return err
	}
	fmt.Printf("Signed in as %s <%s>.\n", user.Username, user.Email)
	return nil
}

func (a *app) runLogout(ctx context.Context) error {
	if err := a.requireSession(ctx); err != nil {
		return err
	}
	if err := a.session.SignOut(ctx); err != nil {
		return err
	}
	fmt.Println("Signed out.")
	return nil
}

func (a *app) runWhoami(ctx context.Context) error {
	if err := a.requireSession(ctx); err != nil {
		return err
	}
	user, _ := a.session.CurrentUser()
	fmt.Printf("%s <%s> (auth: %s)\n", user.Username, user.Email, user.AuthProvider)
	if user.Google != nil {
		fmt.Printf("  linked google: %s\n", user.Google.Name)
	}
	if user.Github != nil {
		fmt.Printf("  linked github: %s\n", user.Github.Name)
	}
	return nil
}

func (a *app) runConnect(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: contabile connect <google|github>")
	}

	url, err := a.session.ProviderLoginURL(a.cfg.APIBaseURL, core.AuthProvider(args[0]))
	if err != nil {
		return err
	}
	fmt.Printf("Open this URL in a browser to continue:\n  %s\n", url)
	fmt.Println("Then run `contabile whoami` to finish signing in.")
	return nil
}

func (a *app) runReset(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: contabile reset <request|confirm>")
	}

	switch args[0] {
	case "request":
		fs := flag.NewFlagSet("reset request", flag.ContinueOnError)
		email := fs.String("email", "", "Account email address")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *email == "" {
			return fmt.Errorf("missing required flag: email")
		}
		if err := a.session.RequestReset(ctx, *email); err != nil {
			return err
		}
		fmt.Printf("Reset link sent to %s.\n", *email)
		return nil

	case "confirm":
		fs := flag.NewFlagSet("reset confirm", flag.ContinueOnError)
		token := fs.String("token", "", "Reset token from the email")
		id := fs.String("id", "", "Reset id from the email")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *token == "" || *id == "" {
			return fmt.Errorf("missing required flags: token, id")
		}

		email, err := a.session.ConfirmReset(ctx, *token, *id)
		if err != nil {
			return err
		}
		password, err := cli.ReadPassword(os.Stdin, os.Stdout, "New password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		if err := a.session.ResetPassword(ctx, email, password); err != nil {
			return err
		}
		fmt.Printf("Password updated for %s.\n", email)
		return nil

	default:
		return fmt.Errorf("unknown reset subcommand %q", args[0])
	}
}

func (a *app) runProfile(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: contabile profile <username|password|email-request|email-confirm|unlink|delete>")
	}
	if err := a.requireSession(ctx); err != nil {
		return err
	}

	switch args[0] {
	case "username":
		fs := flag.NewFlagSet("profile username", flag.ContinueOnError)
		name := fs.String("new", "", "New username")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *name == "" {
			return fmt.Errorf("missing required flag: new")
		}
		user, err := a.session.ChangeUsername(ctx, *name)
		if err != nil {
			return err
		}
		fmt.Printf("Username changed to %s.\n", user.Username)
		return nil

	case "password":
		oldPassword, err := cli.ReadPassword(os.Stdin, os.Stdout, "Current password: ")
		if err != nil {
			return err
		}
		newPassword, err := cli.ReadPassword(os.Stdin, os.Stdout, "New password: ")
		if err != nil {
			return err
		}
		if err := a.session.ChangePassword(ctx, oldPassword, newPassword); err != nil {
			return err
		}
		fmt.Println("Password changed.")
		return nil

	case "email-request":
		fs := flag.NewFlagSet("profile email-request", flag.ContinueOnError)
		newEmail := fs.String("new", "", "New email address")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *newEmail == "" {
			return fmt.Errorf("missing required flag: new")
		}
		password, err := cli.ReadPassword(os.Stdin, os.Stdout, "Password: ")
		if err != nil {
			return err
		}
		if err := a.session.RequestEmailChange(ctx, password, *newEmail); err != nil {
			return err
		}
		fmt.Printf("Confirmation link sent to %s.\n", *newEmail)
		return nil

	case "email-confirm":
		fs := flag.NewFlagSet("profile email-confirm", flag.ContinueOnError)
		token := fs.String("token", "", "Change token from the email")
		id := fs.String("id", "", "Change id from the email")
		newEmail := fs.String("new", "", "New email address")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *token == "" || *id == "" || *newEmail == "" {
			return fmt.Errorf("missing required flags: token, id, new")
		}
		user, err := a.session.ChangeEmail(ctx, *token, *id, *newEmail)
		if err != nil {
			return err
		}
		fmt.Printf("Email changed to %s.\n", user.Email)
		return nil

	case "unlink":
		if len(args) != 2 {
			return fmt.Errorf("usage: contabile profile unlink <google|github>")
		}
		user, err := a.session.UnlinkProvider(ctx, core.AuthProvider(args[1]))
		if err != nil {
			return err
		}
		fmt.Printf("Unlinked %s from %s.\n", args[1], user.Username)
		return nil

	case "delete":
		answer, err := cli.ReadLine(os.Stdin, os.Stdout, "Delete the account and all its data? Type the account email to confirm: ")
		if err != nil {
			return err
		}
		user, _ := a.session.CurrentUser()
		if answer != user.Email {
			return fmt.Errorf("confirmation did not match, account kept")
		}
		if err := a.session.DeleteAccount(ctx); err != nil {
			return err
		}
		fmt.Println("Account deleted.")
		return nil

	default:
		return fmt.Errorf("unknown profile subcommand %q", args[0])
	}
}
