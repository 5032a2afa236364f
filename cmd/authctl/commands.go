package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/term"

	"github.com/arklim/auth-service/internal/core/domain"
	"github.com/arklim/auth-service/internal/infra/app"
	"github.com/arklim/auth-service/internal/infra/config"
	"github.com/arklim/auth-service/internal/infra/logger"
	"github.com/arklim/auth-service/internal/usecase"
)

const usage = `usage: authctl <command> [flags]

commands:
  register -email <address> [-name <display name>]
  revoke   -token <jwt>`

var errUsage = errors.New(usage)

// environment isolates process side effects so commands can run against fakes.
type environment struct {
	out          io.Writer
	readPassword func(prompt string) (string, error)
	openCore     func(ctx context.Context) (*app.Core, error)
}

func newEnvironment() environment {
	return environment{
		out: os.Stdout,
		readPassword: func(prompt string) (string, error) {
			fmt.Fprint(os.Stderr, prompt)
			pw, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return "", fmt.Errorf("read password: %w", err)
			}
			return string(pw), nil
		},
		openCore: func(ctx context.Context) (*app.Core, error) {
			cfg, err := config.Load()
			if err != nil {
				return nil, fmt.Errorf("load config: %w", err)
			}
			log, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
			if err != nil {
				return nil, fmt.Errorf("init logger: %w", err)
			}
			return app.NewCore(ctx, cfg, log, prometheus.NewRegistry())
		},
	}
}

func run(ctx context.Context, args []string, env environment) error {
	if len(args) == 0 {
		return errUsage
	}

	switch args[0] {
	case "register":
		return runRegister(ctx, args[1:], env)
	case "revoke":
		return runRevoke(ctx, args[1:], env)
	case "-h", "--help", "help":
		fmt.Fprintln(env.out, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n%w", args[0], errUsage)
	}
}

func runRegister(ctx context.Context, args []string, env environment) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	email := fs.String("email", "", "account email address")
	name := fs.String("name", "", "optional display name")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w\n%w", err, errUsage)
	}
	if strings.TrimSpace(*email) == "" {
		return fmt.Errorf("register: -email is required")
	}

	password, err := env.readPassword("Password: ")
	if err != nil {
		return err
	}
	confirmation, err := env.readPassword("Confirm password: ")
	if err != nil {
		return err
	}

	core, err := env.openCore(ctx)
	if err != nil {
		return err
	}
	defer core.Close()

	id, err := core.Auth.Register(ctx, usecase.RegisterInput{
		Email:                *email,
		Password:             password,
		PasswordConfirmation: confirmation,
		Name:                 *name,
	})
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}

	fmt.Fprintf(env.out, "registered user %s\n", id)
	return nil
}

func runRevoke(ctx context.Context, args []string, env environment) error {
	fs := flag.NewFlagSet("revoke", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	token := fs.String("token", "", "access or refresh token to revoke")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w\n%w", err, errUsage)
	}
	if strings.TrimSpace(*token) == "" {
		return fmt.Errorf("revoke: -token is required")
	}

	core, err := env.openCore(ctx)
	if err != nil {
		return err
	}
	defer core.Close()

	claims, err := core.Auth.RevokeToken(ctx, *token)
	if errors.Is(err, domain.ErrExpiredToken) {
		fmt.Fprintln(env.out, "token already expired, nothing to revoke")
		return nil
	}
	if err != nil {
		return fmt.Errorf("revoke: %w", err)
	}

	fmt.Fprintf(env.out, "revoked %s token for user %s\n", claims.Type, claims.Subject)
	return nil
}
