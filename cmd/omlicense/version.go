package main

import (
	"github.com/spf13/cobra"

	"odoomaster/pkg/contracts"
)

func newVersionCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o.printf("%s\n", contracts.GetFullVersionString())
			return nil
		},
	}
}
