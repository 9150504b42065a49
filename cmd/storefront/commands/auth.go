package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/florianilch/storefront/internal/auth"
)

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "sign in and store the session",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Usage: "account email", Required: true},
			&cli.StringFlag{Name: "password", Usage: "account password (prompted when omitted)"},
		},
		Action: withSession(func(ctx context.Context, cmd *cli.Command, s *session) error {
			password, err := passwordFrom(cmd)
			if err != nil {
				return err
			}

			user, err := s.app.Auth.Login(ctx, auth.Credentials{Email: cmd.String("email"), Password: password})
			if err != nil {
				return userError(err)
			}

			fmt.Fprintf(s.out, "Signed in as %s\n", user.Email)
			return nil
		}),
	}
}

func registerCommand() *cli.Command {
	return &cli.Command{
		Name:  "register",
		Usage: "create an account and sign in",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Usage: "display name", Required: true},
			&cli.StringFlag{Name: "email", Usage: "account email", Required: true},
			&cli.StringFlag{Name: "password", Usage: "account password (prompted when omitted)"},
		},
		Action: withSession(func(ctx context.Context, cmd *cli.Command, s *session) error {
			password, err := passwordFrom(cmd)
			if err != nil {
				return err
			}

			user, err := s.app.Auth.Register(ctx, auth.Registration{
				Name:     cmd.String("name"),
				Email:    cmd.String("email"),
				Password: password,
			})
			if err != nil {
				return userError(err)
			}

			fmt.Fprintf(s.out, "Account created for %s\n", user.Email)
			return nil
		}),
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "forget the stored session",
		Action: withSession(func(ctx context.Context, _ *cli.Command, s *session) error {
			s.app.Auth.Logout(ctx)
			fmt.Fprintln(s.out, "Signed out")
			return nil
		}),
	}
}

func whoamiCommand() *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "show the signed-in user",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "local", Usage: "print the stored user without contacting the backend"},
		},
		Action: withSession(func(ctx context.Context, cmd *cli.Command, s *session) error {
			if !s.app.Session.IsAuthenticated() {
				return cli.Exit("Not signed in", 1)
			}

			if cmd.Bool("local") {
				out := map[string]any{"user": s.app.Session.User()}
				if claims, err := s.app.Session.Claims(); err == nil {
					out["expiresAt"] = claims.ExpiresAt
				}
				return printJSON(s.out, out)
			}

			user, err := s.app.Auth.Profile(ctx)
			if err != nil {
				return userError(err)
			}
			return printJSON(s.out, user)
		}),
	}
}

// passwordFrom returns the --password flag or prompts for it. The prompt does not
// echo when stdin is a terminal.
func passwordFrom(cmd *cli.Command) (string, error) {
	if cmd.IsSet("password") {
		return cmd.String("password"), nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	defer fmt.Fprintln(os.Stderr)

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(raw), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", errors.New("no password provided")
	}
	return strings.TrimRight(line, "\r\n"), nil
}
