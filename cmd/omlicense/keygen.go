package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"odoomaster/internal/config"
	"odoomaster/internal/license"
	"odoomaster/internal/security"
)

func newKeygenCommand(o *rootOptions) *cobra.Command {
	var (
		outDir     string
		bits       int
		passphrase string
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate the RSA key pair that signs and verifies licenses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := license.GenerateKeyPair(bits)
			if err != nil {
				return err
			}

			files, err := license.WriteKeyPair(outDir, config.PrivateKeyFileName, config.PublicKeyFileName,
				key, passphrase, security.DefaultSealConfig())
			if err != nil {
				return fmt.Errorf("failed to write key pair: %w", err)
			}

			o.printf("Private key: %s\n", files.PrivateKey)
			o.printf("Public key:  %s\n", files.PublicKey)
			if files.Sealed {
				o.printf("The private key is sealed; pass the same passphrase when issuing.\n")
			}
			o.warnf("keep %s secret; ship only %s with installations\n", config.PrivateKeyFileName, config.PublicKeyFileName)
			return nil
		},
	}

	cmd.Flags().StringVar(&outDir, "out-dir", ".", "Directory to write the key files into")
	cmd.Flags().IntVar(&bits, "bits", config.DefaultKeyBits, "RSA modulus size")
	cmd.Flags().StringVar(&passphrase, "passphrase", "", "Seal the private key with this passphrase")
	return cmd
}
