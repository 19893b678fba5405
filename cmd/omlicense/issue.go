package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"odoomaster/internal/config"
	"odoomaster/internal/infra/sqlite"
	"odoomaster/internal/license"
	"odoomaster/internal/services"
	api "odoomaster/pkg/contracts/api/v1"
)

type issueOptions struct {
	privateKey string
	passphrase string
	out        string
	ledger     string
	req        api.IssueLicenseRequest
}

func newIssueCommand(o *rootOptions) *cobra.Command {
	opts := &issueOptions{}

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Sign a license bundle",
		Long: `Sign a license bundle and write it as a .oml file.

Exactly one of --expires-at, --days and --unlimited selects the expiry.
The private key is read from --private-key, ODOMASTER_LICENSE_PRIVATE_KEY_PEM
or the configured key file, in that order.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, o)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.privateKey, "private-key", "", "Private key file (PEM or sealed envelope)")
	flags.StringVar(&opts.passphrase, "passphrase", "", "Passphrase of a sealed private key")
	flags.StringVarP(&opts.out, "out", "o", "", "Output file (default: ./license_<license_id>.oml)")
	flags.StringVar(&opts.ledger, "ledger", "", "Record the bundle in this SQLite ledger")
	flags.StringVar(&opts.req.ExpiresAt, "expires-at", "", "Expiry timestamp (RFC 3339 or YYYY-MM-DD[THH:MM[:SS]])")
	flags.IntVar(&opts.req.Days, "days", 0, "Expire this many days from now")
	flags.BoolVar(&opts.req.Unlimited, "unlimited", false, "Issue a lifetime license")
	flags.StringVar(&opts.req.HardwareID, "hardware-id", "", "Bind the license to this device fingerprint")
	flags.StringVar(&opts.req.IssuedTo, "issued-to", "", "Customer the license is issued to")
	flags.StringVar(&opts.req.Plan, "plan", config.DefaultPlan, "License plan")
	flags.StringVar(&opts.req.LicenseID, "license-id", "", "License id (default: random)")
	cmd.MarkFlagsMutuallyExclusive("expires-at", "days", "unlimited")
	return cmd
}

func (opts *issueOptions) run(cmd *cobra.Command, o *rootOptions) error {
	ctx := commandContext(cmd)
	lc := o.cfg.License

	pemText, keyFile := lc.PrivateKeyPEM, lc.PrivateKeyFile
	if opts.privateKey != "" {
		pemText, keyFile = "", opts.privateKey
	}
	passphrase := opts.passphrase
	if passphrase == "" {
		passphrase = lc.PrivateKeyPassphrase
	}

	key, err := license.LoadPrivateKey(pemText, keyFile, passphrase)
	if err != nil {
		return err
	}
	authority, err := license.NewAuthority(key, license.WithAuthorityLogger(o.logger))
	if err != nil {
		return err
	}

	var ledger services.Ledger
	if opts.ledger != "" {
		if err := os.MkdirAll(filepath.Dir(opts.ledger), 0755); err != nil {
			return fmt.Errorf("failed to create ledger directory: %w", err)
		}
		db, err := sqlite.InitDB(ctx, opts.ledger)
		if err != nil {
			return fmt.Errorf("failed to open ledger: %w", err)
		}
		defer sqlite.CloseDB(db)
		ledger = sqlite.NewLicenseRepository(db)
	}

	svc := services.NewLicenseService(services.LicenseDeps{
		Authority: authority,
		Ledger:    ledger,
	}, o.logger)

	issued, err := svc.Issue(ctx, opts.req)
	if err != nil {
		return err
	}

	path := opts.out
	if path == "" {
		path = issued.FileName
	}
	if err := os.WriteFile(path, append(issued.Bundle, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write license file: %w", err)
	}

	o.logger.Info("license written", slog.String("path", path), slog.String("license_id", issued.LicenseID))
	o.printf("License ID: %s\n", issued.LicenseID)
	o.printf("Expires:    %s\n", issued.ExpiresAt)
	o.printf("Written to: %s\n", path)
	return nil
}
