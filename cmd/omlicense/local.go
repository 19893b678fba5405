package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"odoomaster/pkg/contracts/domain"
)

func newActivateCommand(o *rootOptions) *cobra.Command {
	var text string

	cmd := &cobra.Command{
		Use:   "activate [license-file]",
		Short: "Verify a license and install it on this machine",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)

			input, err := readLicenseInput(text, args)
			if err != nil {
				return err
			}
			core, err := o.core("")
			if err != nil {
				return err
			}

			status, err := o.service(core, nil, nil).Activate(ctx, input, o.language())
			writeStatus(o, status)
			if err != nil {
				o.logger.Debug("activation refused", slog.String("error", err.Error()))
				return errLicenseInvalid
			}
			o.printf("Activated. Stored in %s\n", status.Source)
			return nil
		},
	}

	cmd.Flags().StringVar(&text, "license", "", "License text instead of a file")
	return cmd
}

func newStatusCommand(o *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the license installed on this machine",
		Long:  "Re-verify the installed license. Exits 1 when it is missing or invalid.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := o.core("")
			if err != nil {
				return err
			}

			status := o.service(core, nil, nil).Status(commandContext(cmd), o.language())
			if asJSON {
				if err := writeJSON(o.out, status); err != nil {
					return err
				}
			} else {
				writeStatus(o, status)
			}
			if !status.OK {
				return errLicenseInvalid
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the status as JSON")
	return cmd
}

func newDeactivateCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate",
		Short: "Remove the installed license from this machine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := o.core("")
			if err != nil {
				return err
			}
			if err := o.service(core, nil, nil).Deactivate(commandContext(cmd)); err != nil {
				return err
			}
			o.printf("License removed\n")
			return nil
		},
	}
}

func newHardwareIDCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "hwid",
		Aliases: []string{"hardware-id"},
		Short:   "Print this machine's hardware fingerprint",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := o.core("")
			if err != nil {
				return err
			}
			info := o.service(core, nil, nil).HardwareInfo(commandContext(cmd))
			o.printf("%s\n", info.HardwareID)
			// stdout stays the bare id for scripts; the source explains mismatches between users
			fmt.Fprintf(o.errOut, "Source: %s\n", info.Source)
			return nil
		},
	}
}

func writeStatus(o *rootOptions, status domain.LicenseStatus) {
	writeResult(o.out, status.VerificationResult)
	writeField(o.out, "This device:     %s\n", status.DeviceHardwareID)
	writeField(o.out, "Key:             %s\n", status.KeyPartial)
}
