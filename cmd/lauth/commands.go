package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/urfave/cli/v3"

	"github.com/starford/lightauth/internal"
	"github.com/starford/lightauth/internal/apperr"
	"github.com/starford/lightauth/internal/bundle"
	"github.com/starford/lightauth/internal/mcpserver"
	"github.com/starford/lightauth/internal/models"
	"github.com/starford/lightauth/internal/otp"
	"github.com/starford/lightauth/internal/otpuri"
	"github.com/starford/lightauth/internal/storage"
	"github.com/starford/lightauth/internal/vaultservice"
)

func (app *cliApp) commands() []*cli.Command {
	bundlePassword := func() cli.Flag {
		return &cli.StringFlag{
			Name:    "bundle-password",
			Usage:   "Password of the .lauth bundle (independent of the vault password)",
			Sources: cli.EnvVars("LAUTH_BUNDLE_PASSWORD"),
		}
	}
	indices := func() cli.Flag {
		return &cli.StringFlag{
			Name:  "indices",
			Usage: "Comma-separated account indices, e.g. 0,2,5 (default: all)",
		}
	}

	return []*cli.Command{
		{
			Name:   "list",
			Usage:  "List accounts in stored order",
			Action: app.withVault(app.list),
		},
		{
			Name:  "add",
			Usage: "Add an account",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "name", Usage: "Account name"},
				&cli.StringFlag{Name: "issuer", Usage: "Issuer, e.g. GitHub"},
				&cli.StringFlag{Name: "secret", Usage: "Base32 secret; spaces and case are ignored"},
				&cli.StringFlag{Name: "uri", Usage: "otpauth:// URI instead of name/issuer/secret"},
				&cli.StringFlag{Name: "icon", Usage: "Icon reference"},
				&cli.BoolFlag{Name: "generate", Usage: "Generate a random secret"},
			},
			Action: app.withVault(app.add),
		},
		{
			Name:      "edit",
			Usage:     "Change name, issuer or icon of an account",
			ArgsUsage: "<index>",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "name", Usage: "New account name"},
				&cli.StringFlag{Name: "issuer", Usage: "New issuer"},
				&cli.StringFlag{Name: "icon", Usage: "New icon reference"},
			},
			Action: app.withVault(app.edit),
		},
		{
			Name:      "rm",
			Usage:     "Remove an account",
			ArgsUsage: "<index>",
			Action:    app.withVault(app.remove),
		},
		{
			Name:      "code",
			Usage:     "Print current codes, or the code of one account",
			ArgsUsage: "[index]",
			Action:    app.withVault(app.code),
		},
		{
			Name:      "uri",
			Usage:     "Print the provisioning URI of an account (contains the secret)",
			ArgsUsage: "<index>",
			Action:    app.withVault(app.uri),
		},
		{
			Name:      "qr",
			Usage:     "Show the QR code of an account, or write it as PNG",
			ArgsUsage: "<index>",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Write a PNG file instead of printing"},
				&cli.IntFlag{Name: "size", Value: otpuri.DefaultQRSize, Usage: "PNG size in pixels"},
			},
			Action: app.withVault(app.qr),
		},
		{
			Name:      "export",
			Usage:     "Export accounts to a .lauth bundle",
			ArgsUsage: "<file>",
			Flags: []cli.Flag{
				bundlePassword(),
				indices(),
				&cli.BoolFlag{Name: "legacy", Usage: "Encrypt in the format older LightAuth releases import"},
			},
			Action: app.withVault(app.export),
		},
		{
			Name:      "import",
			Usage:     "Import accounts from a .lauth bundle",
			ArgsUsage: "<file>",
			Flags: []cli.Flag{
				bundlePassword(),
				indices(),
				&cli.BoolFlag{Name: "dry-run", Usage: "List the bundle contents without importing"},
			},
			Action: app.withVault(app.importBundle),
		},
		{
			Name:  "passwd",
			Usage: "Set, change or remove the vault password",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "new", Usage: "New password; prompted for when omitted", Sources: cli.EnvVars("LAUTH_NEW_PASSWORD")},
				&cli.BoolFlag{Name: "disable", Usage: "Remove the password and store the vault unencrypted"},
			},
			Action: app.withVault(app.passwd),
		},
		{
			Name:      "settings",
			Usage:     "Print settings, or set theme, auto-copy or show-seconds",
			ArgsUsage: "[key value]",
			Action:    app.settings,
		},
		{
			Name:   "secret",
			Usage:  "Generate a random base32 secret",
			Action: app.secret,
		},
		{
			Name:  "audit",
			Usage: "Show recent vault activity",
			Flags: []cli.Flag{
				&cli.IntFlag{Name: "limit", Value: 20, Usage: "Maximum entries"},
			},
			Action: app.withVault(app.audit),
		},
		{
			Name:   "serve",
			Usage:  "Run the local HTTP API",
			Action: serve,
		},
		{
			Name:   "mcp",
			Usage:  "Run the MCP tool server on stdio",
			Action: app.withVault(app.mcp),
		},
	}
}

// session is an unlocked vault for the lifetime of one command.
type session struct {
	svc      *vaultservice.Service
	password string
}

type vaultAction func(ctx context.Context, cmd *cli.Command, s *session) error

// openService builds the service for cmd with logs on stderr.
func (app *cliApp) openService(cmd *cli.Command) (*vaultservice.Service, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	return internal.OpenService(cfg, internal.NewLogger(cfg, app.errOut))
}

// withVault unlocks the vault, prompting for the password when encryption
// is enabled and none was given, runs fn and locks again.
func (app *cliApp) withVault(fn vaultAction) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		svc, closeSvc, err := app.openService(cmd)
		if err != nil {
			return err
		}
		defer closeSvc()

		pw := cmd.String("password")
		if pw == "" && svc.Status().EncryptionEnabled {
			if pw, err = app.prompt("Vault password: "); err != nil {
				return err
			}
		}
		ok, err := svc.Unlock(ctx, pw)
		switch {
		case ok && errors.Is(err, apperr.ErrVaultUnreadable):
			fmt.Fprintf(app.errOut, "warning: %v; changes are disabled\n", err)
		case err != nil:
			return err
		case !ok:
			return apperr.ErrWrongPassword
		}
		return fn(ctx, cmd, &session{svc: svc, password: pw})
	}
}

func argIndex(cmd *cli.Command) (int, error) {
	if cmd.Args().Len() < 1 {
		return 0, fmt.Errorf("missing <index> argument")
	}
	i, err := strconv.Atoi(cmd.Args().First())
	if err != nil {
		return 0, fmt.Errorf("index must be an integer: %q", cmd.Args().First())
	}
	return i, nil
}

func parseIndices(raw string) ([]int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parts := lo.Map(strings.Split(raw, ","), func(p string, _ int) string { return strings.TrimSpace(p) })
	out := make([]int, 0, len(parts))
	for _, p := range lo.Compact(parts) {
		i, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid index %q", p)
		}
		out = append(out, i)
	}
	return out, nil
}

func argFile(cmd *cli.Command) (string, error) {
	if cmd.Args().Len() < 1 {
		return "", fmt.Errorf("missing <file> argument")
	}
	return cmd.Args().First(), nil
}

func (app *cliApp) list(_ context.Context, _ *cli.Command, s *session) error {
	accs, err := s.svc.Accounts()
	if err != nil {
		return err
	}
	if len(accs) == 0 {
		fmt.Fprintln(app.out, "no accounts")
		return nil
	}
	for i, a := range accs {
		fmt.Fprintf(app.out, "%3d  %s\n", i, a.DisplayName())
	}
	return nil
}

func (app *cliApp) add(ctx context.Context, cmd *cli.Command, s *session) error {
	a := models.Account{
		Name:   cmd.String("name"),
		Issuer: cmd.String("issuer"),
		Secret: cmd.String("secret"),
		Icon:   cmd.String("icon"),
	}
	if raw := cmd.String("uri"); raw != "" {
		key, ok := otpuri.Parse(raw)
		if !ok {
			return fmt.Errorf("%w: not a usable otpauth uri", apperr.ErrInvalidAccount)
		}
		a = key.Account()
		a.Icon = cmd.String("icon")
	}
	if cmd.Bool("generate") {
		if a.Secret != "" {
			return fmt.Errorf("--generate and a secret are mutually exclusive")
		}
		secret, err := otp.GenerateSecret()
		if err != nil {
			return err
		}
		a.Secret = secret
		fmt.Fprintf(app.out, "secret: %s\n", secret)
	}
	i, err := s.svc.Add(ctx, a)
	if err != nil {
		return err
	}
	fmt.Fprintf(app.out, "added %d  %s\n", i, a.DisplayName())
	return nil
}

func (app *cliApp) edit(ctx context.Context, cmd *cli.Command, s *session) error {
	i, err := argIndex(cmd)
	if err != nil {
		return err
	}
	a, err := s.svc.Get(i)
	if err != nil {
		return err
	}
	if cmd.IsSet("name") {
		a.Name = cmd.String("name")
	}
	if cmd.IsSet("issuer") {
		a.Issuer = cmd.String("issuer")
	}
	if cmd.IsSet("icon") {
		a.Icon = cmd.String("icon")
	}
	a.Secret = ""
	if err := s.svc.Update(ctx, i, a); err != nil {
		return err
	}
	fmt.Fprintf(app.out, "updated %d  %s\n", i, a.DisplayName())
	return nil
}

func (app *cliApp) remove(ctx context.Context, cmd *cli.Command, s *session) error {
	i, err := argIndex(cmd)
	if err != nil {
		return err
	}
	a, err := s.svc.Get(i)
	if err != nil {
		return err
	}
	if err := s.svc.Remove(ctx, i); err != nil {
		return err
	}
	fmt.Fprintf(app.out, "removed %s\n", a.DisplayName())
	return nil
}

func (app *cliApp) code(_ context.Context, cmd *cli.Command, s *session) error {
	now := time.Now()
	if cmd.Args().Len() > 0 {
		i, err := argIndex(cmd)
		if err != nil {
			return err
		}
		c, err := s.svc.CurrentCode(i, now)
		if err != nil {
			return err
		}
		fmt.Fprintln(app.out, c.Code)
		return nil
	}

	codes, err := s.svc.Codes(now)
	if err != nil {
		return err
	}
	for _, c := range codes {
		name := models.Account{Name: c.Name, Issuer: c.Issuer}.DisplayName()
		if c.Error != "" {
			fmt.Fprintf(app.out, "%3d  ------  %2ds  %s (%s)\n", c.Index, c.RemainingSeconds, name, c.Error)
			continue
		}
		fmt.Fprintf(app.out, "%3d  %s  %2ds  %s\n", c.Index, c.Code, c.RemainingSeconds, name)
	}
	return nil
}

func (app *cliApp) uri(_ context.Context, cmd *cli.Command, s *session) error {
	i, err := argIndex(cmd)
	if err != nil {
		return err
	}
	a, err := s.svc.Get(i)
	if err != nil {
		return err
	}
	fmt.Fprintln(app.out, otpuri.Build(a))
	return nil
}

func (app *cliApp) qr(_ context.Context, cmd *cli.Command, s *session) error {
	i, err := argIndex(cmd)
	if err != nil {
		return err
	}
	a, err := s.svc.Get(i)
	if err != nil {
		return err
	}

	out := cmd.String("out")
	if out == "" {
		text, err := otpuri.QRText(a)
		if err != nil {
			return err
		}
		fmt.Fprint(app.out, text)
		return nil
	}

	png, err := otpuri.QRCode(a, int(cmd.Int("size")))
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, png, storage.FilePerm); err != nil {
		return err
	}
	fmt.Fprintf(app.out, "wrote %s\n", out)
	return nil
}

func (app *cliApp) export(ctx context.Context, cmd *cli.Command, s *session) error {
	path, err := argFile(cmd)
	if err != nil {
		return err
	}
	idx, err := parseIndices(cmd.String("indices"))
	if err != nil {
		return err
	}
	data, err := s.svc.Export(ctx, idx, cmd.String("bundle-password"), cmd.Bool("legacy"))
	if err != nil {
		return err
	}
	path = bundle.EnsureExtension(path)
	if err := os.WriteFile(path, data, storage.FilePerm); err != nil {
		return err
	}
	fmt.Fprintf(app.out, "exported to %s\n", path)
	return nil
}

func (app *cliApp) importBundle(ctx context.Context, cmd *cli.Command, s *session) error {
	path, err := argFile(cmd)
	if err != nil {
		return err
	}
	if !bundle.IsBundlePath(path) {
		fmt.Fprintf(app.errOut, "warning: %s does not have the %s extension\n", path, bundle.DefaultExtension)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	pw := cmd.String("bundle-password")

	var accs []models.Account
	if cmd.Bool("dry-run") {
		accs, err = s.svc.PreviewImport(data, pw)
	} else {
		var idx []int
		if idx, err = parseIndices(cmd.String("indices")); err != nil {
			return err
		}
		accs, err = s.svc.Import(ctx, data, pw, idx)
	}
	if errors.Is(err, apperr.ErrPasswordRequired) {
		return fmt.Errorf("%w: use --bundle-password", err)
	}
	if err != nil {
		return err
	}

	for i, a := range accs {
		fmt.Fprintf(app.out, "%3d  %s\n", i, a.DisplayName())
	}
	if cmd.Bool("dry-run") {
		fmt.Fprintf(app.out, "%d accounts in bundle\n", len(accs))
	} else {
		fmt.Fprintf(app.out, "imported %d accounts\n", len(accs))
	}
	return nil
}

func (app *cliApp) passwd(ctx context.Context, cmd *cli.Command, s *session) error {
	var next string
	switch {
	case cmd.Bool("disable"):
	case cmd.IsSet("new"):
		next = cmd.String("new")
	default:
		first, err := app.prompt("New password: ")
		if err != nil {
			return err
		}
		again, err := app.prompt("Repeat new password: ")
		if err != nil {
			return err
		}
		if first != again {
			return fmt.Errorf("passwords do not match")
		}
		next = first
	}
	if next == "" && !cmd.Bool("disable") {
		return fmt.Errorf("empty password: use --disable to store the vault unencrypted")
	}

	if err := s.svc.SetPassword(ctx, s.password, next); err != nil {
		return err
	}
	if next == "" {
		fmt.Fprintln(app.out, "encryption disabled")
	} else {
		fmt.Fprintln(app.out, "password changed")
	}
	return nil
}

func (app *cliApp) settings(_ context.Context, cmd *cli.Command) error {
	svc, closeSvc, err := app.openService(cmd)
	if err != nil {
		return err
	}
	defer closeSvc()

	if cmd.Args().Len() == 0 {
		cur, err := svc.Settings()
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(cur.Public(), "", "    ")
		if err != nil {
			return err
		}
		fmt.Fprintln(app.out, string(out))
		return nil
	}

	if cmd.Args().Len() != 2 {
		return fmt.Errorf("usage: settings <theme|auto-copy|show-seconds> <value>")
	}
	key, value := cmd.Args().Get(0), cmd.Args().Get(1)
	var p vaultservice.Preferences
	switch key {
	case "theme":
		p.Theme = &value
	case "auto-copy", "show-seconds":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s expects true or false", key)
		}
		if key == "auto-copy" {
			p.AutoCopy = &b
		} else {
			p.ShowSeconds = &b
		}
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	if _, err := svc.UpdatePreferences(p); err != nil {
		return err
	}
	fmt.Fprintf(app.out, "%s = %s\n", key, value)
	return nil
}

func (app *cliApp) secret(_ context.Context, _ *cli.Command) error {
	s, err := otp.GenerateSecret()
	if err != nil {
		return err
	}
	fmt.Fprintln(app.out, s)
	return nil
}

func (app *cliApp) audit(ctx context.Context, cmd *cli.Command, s *session) error {
	events, err := s.svc.ActivityLog(ctx, int(cmd.Int("limit")))
	if err != nil {
		return err
	}
	for _, e := range events {
		line := fmt.Sprintf("%s  %-16s", e.At.Local().Format(time.DateTime), e.Kind)
		if e.Account != "" {
			line += "  " + e.Account
		}
		if e.Detail != "" {
			line += "  " + e.Detail
		}
		fmt.Fprintln(app.out, line)
	}
	return nil
}

func (app *cliApp) mcp(_ context.Context, _ *cli.Command, s *session) error {
	return mcpserver.New(s.svc, version).ServeStdio()
}
