package main

import (
	"github.com/spf13/cobra"

	api "odoomaster/pkg/contracts/api/v1"
)

func newVerifyCommand(o *rootOptions) *cobra.Command {
	var (
		text       string
		hardwareID string
		publicKey  string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "verify [license-file]",
		Short: "Verify a license bundle or legacy key",
		Long: `Verify a license against a device fingerprint, this machine's by default.

Exits 0 when the license is valid and 1 otherwise.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)

			input, err := readLicenseInput(text, args)
			if err != nil {
				return err
			}

			core, err := o.core(publicKey)
			if err != nil {
				return err
			}
			if hardwareID == "" {
				hardwareID = core.hardware.Fingerprint(ctx)
			}

			res := o.service(core, nil, nil).Verify(ctx, api.VerifyLicenseRequest{
				License:    input,
				HardwareID: hardwareID,
			}, o.language())

			if asJSON {
				if err := writeJSON(o.out, res); err != nil {
					return err
				}
			} else {
				writeResult(o.out, res)
			}
			if !res.OK {
				return errLicenseInvalid
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&text, "license", "", "License text instead of a file")
	cmd.Flags().StringVar(&hardwareID, "hardware-id", "", "Fingerprint to verify against (default: this machine)")
	cmd.Flags().StringVar(&publicKey, "public-key", "", "Public key file (default: configured key)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}
