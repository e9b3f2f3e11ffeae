package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newProvisionCommand(ctx *commandContext) *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Download the converter executable if it is missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			prov, err := ctx.provisioner()
			if err != nil {
				return err
			}

			if check {
				exe, err := prov.Status()
				if err != nil {
					return err
				}
				if exe == nil {
					return fmt.Errorf("converter executable not found at %s", prov.Path())
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Path", "Size"},
					[][]string{{exe.Path, humanize.Bytes(uint64(exe.SizeBytes))}},
					[]columnAlignment{alignLeft, alignRight},
				))
				return nil
			}

			exe, err := prov.Ensure(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Converter ready: %s (%s)\n", exe.Path, humanize.Bytes(uint64(exe.SizeBytes)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "Only report the executable on disk, never download")
	return cmd
}
