package main

import (
	"github.com/spf13/cobra"

	"odoomaster/internal/config"
	"odoomaster/internal/infra/sqlite"
	"odoomaster/internal/services"
	api "odoomaster/pkg/contracts/api/v1"
)

func newRevokeCommand(o *rootOptions) *cobra.Command {
	var req api.RevokeLicenseRequest

	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Add a license or device to the local revocation registry",
		Long: `Add an entry to the revocation registry file.

A license is identified by --license-id for signed bundles or --key for
legacy keys; --hardware-id revokes every license bound to a device. The
issued-license ledger is updated too when it exists.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)

			core, err := o.core("")
			if err != nil {
				return err
			}

			var ledger services.Ledger
			if path := o.cfg.License.LedgerPath; config.FileExists(path) {
				db, err := sqlite.InitDB(ctx, path)
				if err != nil {
					return err
				}
				defer sqlite.CloseDB(db)
				ledger = sqlite.NewLicenseRepository(db)
			}

			result, err := o.service(core, nil, ledger).Revoke(ctx, req)
			if err != nil {
				return err
			}

			if result.Added {
				o.printf("Revocation added to %s\n", core.registry.Path())
			} else {
				o.printf("Already revoked, registry unchanged\n")
			}
			if result.KeyHash != "" {
				o.printf("Key hash:    %s\n", result.KeyHash)
			}
			if result.HardwareID != "" {
				o.printf("Hardware ID: %s\n", result.HardwareID)
			}
			if result.Ledger {
				o.printf("Ledger entry marked revoked\n")
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&req.LicenseID, "license-id", "", "License id of a signed bundle")
	flags.StringVar(&req.Key, "key", "", "Full legacy license key")
	flags.StringVar(&req.HardwareID, "hardware-id", "", "Device fingerprint")
	flags.StringVar(&req.Reason, "reason", "", "Reason recorded with the entry")
	cmd.MarkFlagsMutuallyExclusive("license-id", "key")
	return cmd
}
