package main

import (
	"github.com/spf13/cobra"

	"odoomaster/internal/license"
)

func newLegacyKeyCommand(o *rootOptions) *cobra.Command {
	var (
		hardwareID string
		expiry     string
		secret     string
	)

	cmd := &cobra.Command{
		Use:   "legacy-key",
		Short: "Generate a pre-signature license key (deprecated)",
		Long: `Generate a key in the old HMAC format for installations that predate
signed bundles. The shared secret ships with every installation, so these
keys can be forged; issue signed bundles wherever possible.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = o.cfg.License.LegacySecret
			}
			key, err := license.NewLegacyAdapter(secret).Generate(hardwareID, expiry)
			if err != nil {
				return err
			}

			o.warnf("legacy keys are deprecated and only accepted where allow_legacy is enabled\n")
			o.printf("%s\n", key)
			return nil
		},
	}

	cmd.Flags().StringVar(&hardwareID, "hardware-id", "", "Device fingerprint")
	cmd.Flags().StringVar(&expiry, "expiry", "", "Expiry date, YYYY-MM-DD")
	cmd.Flags().StringVar(&secret, "secret", "", "HMAC secret (default: configured legacy secret)")
	_ = cmd.MarkFlagRequired("hardware-id")
	_ = cmd.MarkFlagRequired("expiry")
	return cmd
}
