// Command clinicalkeys inspects and manages the purpose-scoped key registry
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli"

	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/audit"
	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/config"
	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/factory"
	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/kms/credentials"
	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/kms/credentials/symmetric"
	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/types"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "clinicalkeys"
	app.Usage = "inspect and manage clinical record encryption keys"
	app.Writer = out
	app.Flags = []cli.Flag{
		cli.StringSliceFlag{
			Name:  "env-file",
			Usage: "read configuration from this .env file (repeatable)",
		},
		cli.BoolFlag{
			Name:   "verbose",
			Usage:  "log at debug level",
			EnvVar: "CLINICAL_ENC_VERBOSE",
		},
		cli.DurationFlag{
			Name:  "timeout",
			Value: 30 * time.Second,
			Usage: "overall deadline for KMS and store calls",
		},
	}
	app.Before = func(c *cli.Context) error {
		level := zerolog.WarnLevel
		if c.GlobalBool("verbose") {
			level = zerolog.DebugLevel
		}
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
		return nil
	}
	app.Commands = []cli.Command{
		{
			Name:  "list",
			Usage: "list keys and their lifecycle state",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "purpose", Usage: "only keys of this purpose"},
			},
			Action: withKeyring(listKeys),
		},
		{
			Name:  "rotate",
			Usage: "expire the active key of a purpose and activate a new one",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "purpose", Usage: "purpose to rotate (required)"},
			},
			Action: withKeyring(rotateKey),
		},
		{
			Name:      "revoke",
			Usage:     "revoke a key; data sealed under it can no longer be opened",
			ArgsUsage: "<key-id>",
			Action:    withKeyring(revokeKey),
		},
		{
			Name:  "rotate-due",
			Usage: "rotate every purpose whose active key passed its rotation date",
			Action: withKeyring(func(ctx context.Context, c *cli.Context, k *factory.Keyring) error {
				rotated, err := k.Registry.RotateDue(ctx, time.Now())
				for _, key := range rotated {
					fmt.Fprintf(c.App.Writer, "rotated %s: new key %s\n", key.Purpose, key.ID)
				}
				if len(rotated) == 0 && err == nil {
					fmt.Fprintln(c.App.Writer, "no keys due")
				}
				return err
			}),
		},
		{
			Name:   "config",
			Usage:  "print the loaded configuration with secrets masked",
			Action: showConfig,
		},
		{
			Name:      "encrypt-credential",
			Usage:     "encrypt a KMS credential for use as an ENC[...] configuration value",
			ArgsUsage: "<value>",
			Action:    encryptCredential,
		},
	}
	return app
}

type keyringAction func(ctx context.Context, c *cli.Context, k *factory.Keyring) error

// withKeyring loads configuration and the registry around action
func withKeyring(action keyringAction) func(c *cli.Context) error {
	return func(c *cli.Context) error {
		cfg, err := config.Load(c.GlobalStringSlice("env-file")...)
		if err != nil {
			return cli.NewExitError(err.Error(), 2)
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.GlobalDuration("timeout"))
		defer cancel()
		ctx = audit.WithActor(ctx, operator())

		k, err := factory.NewKeyring(ctx, cfg, factory.WithoutSchedule())
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		defer func() {
			if err := k.Close(ctx); err != nil {
				log.Warn().Err(err).Msg("Failed to close keyring")
			}
		}()
		return action(ctx, c, k)
	}
}

func listKeys(_ context.Context, c *cli.Context, k *factory.Keyring) error {
	var purpose types.KeyPurpose
	if v := c.String("purpose"); v != "" {
		p, err := types.ParseKeyPurpose(v)
		if err != nil {
			return cli.NewExitError(err.Error(), 2)
		}
		purpose = p
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPURPOSE\tSTATUS\tALGORITHM\tCREATED\tROTATE AT\tRETIRED")
	for _, key := range k.Registry.Keys(purpose) {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			key.ID, key.Purpose, key.Status, key.Algorithm,
			formatTime(key.CreatedAt), formatTime(key.ExpiresAt), formatTime(key.RetiredAt))
	}
	return w.Flush()
}

func rotateKey(ctx context.Context, c *cli.Context, k *factory.Keyring) error {
	purpose, err := types.ParseKeyPurpose(c.String("purpose"))
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	key, err := k.Registry.Rotate(ctx, purpose)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "rotated %s: new key %s\n", purpose, key.ID)
	return nil
}

func revokeKey(ctx context.Context, c *cli.Context, k *factory.Keyring) error {
	keyID := c.Args().First()
	if keyID == "" {
		return cli.NewExitError("key id is required", 2)
	}
	if err := k.Registry.Revoke(ctx, keyID); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "revoked %s\n", keyID)
	return nil
}

func showConfig(c *cli.Context) error {
	cfg, err := config.Load(c.GlobalStringSlice("env-file")...)
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	shown := *cfg
	shown.Credentials = credentials.Mask(cfg.Credentials)

	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(&shown)
}

func encryptCredential(c *cli.Context) error {
	value := c.Args().First()
	if value == "" {
		return cli.NewExitError("value is required", 2)
	}
	encoded := os.Getenv(config.EnvPrefix + "CREDENTIALS_KEY")
	if encoded == "" {
		return cli.NewExitError(config.EnvPrefix+"CREDENTIALS_KEY is not set", 2)
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("invalid credentials key: %v", err), 2)
	}
	encryptor, err := symmetric.NewEncryption(key)
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	sealed, err := encryptor.Encrypt(value)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, sealed)
	return nil
}

func operator() string {
	if u := os.Getenv("USER"); u != "" {
		return "cli:" + u
	}
	return "cli"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
