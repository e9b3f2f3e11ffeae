package main

import (
	"fmt"
	"strings"

	"github.com/cuongbtq/media-fetcher/internal/converter/domain"
	"github.com/spf13/cobra"
)

func newKindsCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "kinds",
		Short:       "List supported output kinds",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds := domain.Kinds()
			rows := make([][]string, 0, len(kinds))
			for _, kind := range kinds {
				rows = append(rows, []string{
					kind.Name,
					kind.MIMEType,
					kind.Filename,
					strings.Join(kind.Aliases, ", "),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Kind", "Content type", "Filename", "Aliases"},
				rows,
				nil,
			))
			return nil
		},
	}
}
