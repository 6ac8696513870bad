package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/lightauth/internal"
	pkgconfig "github.com/starford/lightauth/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}
	if pw := cmd.String("password"); pw != "" {
		opts = append(opts, internal.WithPassword(pw))
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func newCommand(app *cliApp) *cli.Command {
	return &cli.Command{
		Name:    "lauth",
		Usage:   "Local TOTP authenticator with an encrypted account vault",
		Version: version,
		Writer:  app.out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file (optional)",
				DefaultText: "lauth.yaml",
				Value:       "lauth.yaml",
				Sources:     cli.EnvVars("LAUTH_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "password",
				Aliases: []string{"p"},
				Usage:   "Vault password; prompted for when omitted and encryption is enabled",
				Sources: cli.EnvVars("LAUTH_PASSWORD"),
			},
		},
		Commands: app.commands(),
	}
}

func main() {
	app := &cliApp{out: os.Stdout, errOut: os.Stderr, prompt: terminalPrompt(os.Stderr)}
	if err := newCommand(app).Run(context.Background(), os.Args); err != nil {
		logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
		logger.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// cliApp carries the streams commands read from and write to.
type cliApp struct {
	out    io.Writer
	errOut io.Writer
	prompt func(label string) (string, error)
}
